package bot

import (
	"context"
	"fmt"
	"log"
	"time"

	"pattibytes-express/services"
)

const dispatchBatch = 20

func (b *Bot) now() time.Time {
	return time.Now().In(b.cfg.Location)
}

// RunDispatcher delivers queued order notifications as order cards until ctx
// is cancelled.
func (b *Bot) RunDispatcher(ctx context.Context) {
	interval := b.cfg.Notify.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	policy := services.NotificationRetryPolicy(b.cfg.Notify.MaxAttempts)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for {
			n, err := b.dispatchOnce(ctx, policy)
			if err != nil {
				log.Printf("dispatch notifications: %v", err)
				break
			}
			if n < dispatchBatch {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// dispatchOnce claims one batch and returns how many were claimed.
func (b *Bot) dispatchOnce(ctx context.Context, policy services.RetryPolicy) (int, error) {
	batch, err := services.ClaimDueNotifications(ctx, dispatchBatch)
	if err != nil {
		return 0, err
	}
	for _, n := range batch {
		if err := b.deliver(ctx, n); err != nil {
			log.Printf("deliver notification id=%s order_id=%d audience=%s attempt=%d: %v", n.ID, n.OrderID, n.Audience, n.Attempts, err)
			if markErr := services.MarkNotificationFailed(ctx, n, policy, err); markErr != nil {
				log.Printf("mark notification failed id=%s: %v", n.ID, markErr)
			}
			continue
		}
		if err := services.MarkNotificationSent(ctx, n.ID); err != nil {
			log.Printf("mark notification sent id=%s: %v", n.ID, err)
		}
	}
	return len(batch), nil
}

// deliver renders the order's current card, so late or repeated deliveries
// still show the latest state.
func (b *Bot) deliver(ctx context.Context, n services.Notification) error {
	o, err := services.GetOrder(ctx, n.OrderID)
	if err != nil {
		return err
	}
	if o == nil {
		return fmt.Errorf("order %d not found", n.OrderID)
	}
	content, err := services.BuildOrderCard(ctx, o, n.Audience, b.cfg.Location)
	if err != nil {
		return err
	}
	return b.UpsertOrderCard(ctx, n.Audience, n.OrderID, n.ChatID, content)
}

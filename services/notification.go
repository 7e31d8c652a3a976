package services

import (
	"context"
	"fmt"
	"time"

	"pattibytes-express/db"
	"pattibytes-express/models"

	"github.com/google/uuid"
)

const (
	AudienceCustomer = "customer"
	AudienceMerchant = "merchant"
	AudienceDriver   = "driver"
)

const (
	NotifyKindStatus         = "status"
	NotifyKindNewOrder       = "new_order"
	NotifyKindDriverAssigned = "driver_assigned"
)

const (
	notificationPending = "pending"
	notificationSending = "sending"
	notificationSent    = "sent"
	notificationFailed  = "failed"
)

// Notification is one queued message about an order for one audience.
type Notification struct {
	ID          uuid.UUID
	OrderID     int64
	Kind        string
	Audience    string
	ChatID      int64
	OrderStatus string
	Attempts    int
}

// NotifyAudiences lists who hears about a status change: the customer
// always, the merchant unless it made the change, and the assigned driver
// unless they made it.
func NotifyAudiences(o *models.Order, change StatusChange) []string {
	out := []string{AudienceCustomer}
	if change.Actor.Role != RoleMerchant {
		out = append(out, AudienceMerchant)
	}
	if o.DriverID != nil && change.Actor.Role != RoleDriver {
		out = append(out, AudienceDriver)
	}
	return out
}

// recipientChat selects the chat id of an order's audience.
var recipientChat = map[string]string{
	AudienceCustomer: `SELECT c.chat_id FROM orders o JOIN customers c ON c.id = o.customer_id WHERE o.id = $2`,
	AudienceMerchant: `SELECT m.chat_id FROM orders o JOIN merchants m ON m.id = o.merchant_id WHERE o.id = $2`,
	AudienceDriver:   `SELECT d.chat_id FROM orders o JOIN drivers d ON d.id = o.driver_id WHERE o.id = $2`,
}

// EnqueueOrderNotifications queues one notification per audience that has a
// linked chat. The same kind/status for the same audience is not queued twice
// within 30 seconds.
func EnqueueOrderNotifications(ctx context.Context, orderID int64, kind, status string, audiences []string) error {
	for _, aud := range audiences {
		q, ok := recipientChat[aud]
		if !ok {
			return fmt.Errorf("unknown audience %q", aud)
		}
		_, err := db.Pool.Exec(ctx, `
			INSERT INTO notifications (id, order_id, kind, audience, chat_id, order_status, status, next_attempt_at)
			SELECT $1::uuid, $2::bigint, $3::text, $4::text, r.chat_id, $5::text, 'pending', now()
			FROM (`+q+`) r
			WHERE r.chat_id IS NOT NULL AND r.chat_id <> 0
			  AND NOT EXISTS (
				SELECT 1 FROM notifications n
				WHERE n.order_id = $2 AND n.kind = $3 AND n.audience = $4 AND n.order_status = $5
				  AND n.created_at > now() - interval '30 seconds')`,
			uuid.New().String(), orderID, kind, aud, status,
		)
		if err != nil {
			return fmt.Errorf("enqueue %s notification order_id=%d: %w", aud, orderID, err)
		}
	}
	return nil
}

// ClaimDueNotifications marks up to limit due notifications as sending and
// returns them. Rows stuck in sending for five minutes are reclaimed.
func ClaimDueNotifications(ctx context.Context, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Pool.Query(ctx, `
		UPDATE notifications SET status = $2, attempts = attempts + 1, updated_at = now()
		WHERE id IN (
			SELECT id FROM notifications
			WHERE (status = $3 AND next_attempt_at <= now())
			   OR (status = $2 AND updated_at < now() - interval '5 minutes')
			ORDER BY next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED)
		RETURNING id::text, order_id, kind, audience, chat_id, order_status, attempts`,
		limit, notificationSending, notificationPending,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var id string
		if err := rows.Scan(&id, &n.OrderID, &n.Kind, &n.Audience, &n.ChatID, &n.OrderStatus, &n.Attempts); err != nil {
			return nil, err
		}
		if n.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func MarkNotificationSent(ctx context.Context, id uuid.UUID) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE notifications SET status = $2, sent_at = now(), last_error = NULL, updated_at = now()
		WHERE id = $1`,
		id.String(), notificationSent,
	)
	return err
}

// MarkNotificationFailed schedules the next attempt after policy's delay, or
// gives up once policy.MaxAttempts is reached.
func MarkNotificationFailed(ctx context.Context, n Notification, policy RetryPolicy, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if n.Attempts >= policy.MaxAttempts {
		_, err := db.Pool.Exec(ctx, `
			UPDATE notifications SET status = $2, last_error = $3, updated_at = now() WHERE id = $1`,
			n.ID.String(), notificationFailed, msg,
		)
		return err
	}
	delay := policy.Delay(n.Attempts - 1)
	_, err := db.Pool.Exec(ctx, `
		UPDATE notifications
		SET status = $2, last_error = $3, next_attempt_at = now() + ($4::float8 * interval '1 millisecond'), updated_at = now()
		WHERE id = $1`,
		n.ID.String(), notificationPending, msg, delay.Milliseconds(),
	)
	return err
}

// NotificationRetryPolicy is the backoff used between delivery attempts.
func NotificationRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, BaseDelay: 5 * time.Second, MaxDelay: 5 * time.Minute}
}

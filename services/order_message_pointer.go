package services

import (
	"context"
	"errors"

	"pattibytes-express/db"

	"github.com/jackc/pgx/v5"
)

// GetOrderMessagePointer returns the chat and message holding the order's
// card for audience. ok is false if no card was sent yet.
func GetOrderMessagePointer(ctx context.Context, orderID int64, audience string) (chatID int64, messageID int, ok bool, err error) {
	err = db.Pool.QueryRow(ctx, `
		SELECT chat_id, message_id FROM order_message_pointers WHERE order_id = $1 AND audience = $2`,
		orderID, audience,
	).Scan(&chatID, &messageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, false, nil
		}
		return 0, 0, false, err
	}
	return chatID, messageID, true, nil
}

// UpsertOrderMessagePointer remembers the card message for (order, audience).
func UpsertOrderMessagePointer(ctx context.Context, orderID int64, audience string, chatID int64, messageID int) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO order_message_pointers (order_id, audience, chat_id, message_id, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (order_id, audience) DO UPDATE SET chat_id = EXCLUDED.chat_id, message_id = EXCLUDED.message_id, updated_at = now()`,
		orderID, audience, chatID, messageID,
	)
	return err
}

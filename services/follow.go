package services

import (
	"context"
	"errors"

	"pattibytes-express/db"

	"github.com/jackc/pgx/v5"
)

var (
	ErrSelfFollow       = errors.New("cannot follow yourself")
	ErrAlreadyFollowing = errors.New("already following")
	ErrNotFollowing     = errors.New("not following")
	ErrProfileNotFound  = errors.New("profile not found")
)

// FollowCounts are the denormalized counters kept on profiles.
type FollowCounts struct {
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
}

// Follow inserts the follower -> followee edge and bumps both counters in one
// transaction.
func Follow(ctx context.Context, followerID, followeeID int64) error {
	if followerID == followeeID {
		return ErrSelfFollow
	}
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO follows (follower_id, followee_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		followerID, followeeID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrProfileNotFound
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyFollowing
	}
	if _, err := tx.Exec(ctx, `UPDATE profiles SET following_count = following_count + 1, updated_at = now() WHERE user_id = $1`, followerID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE profiles SET followers_count = followers_count + 1, updated_at = now() WHERE user_id = $1`, followeeID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Unfollow removes the edge and decrements both counters, never below zero.
func Unfollow(ctx context.Context, followerID, followeeID int64) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`, followerID, followeeID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFollowing
	}
	if _, err := tx.Exec(ctx, `UPDATE profiles SET following_count = GREATEST(following_count - 1, 0), updated_at = now() WHERE user_id = $1`, followerID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE profiles SET followers_count = GREATEST(followers_count - 1, 0), updated_at = now() WHERE user_id = $1`, followeeID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetFollowCounts returns nil, nil when the user has no profile.
func GetFollowCounts(ctx context.Context, userID int64) (*FollowCounts, error) {
	var c FollowCounts
	err := db.Pool.QueryRow(ctx, `SELECT followers_count, following_count FROM profiles WHERE user_id = $1`, userID).
		Scan(&c.Followers, &c.Following)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

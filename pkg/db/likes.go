package db

import (
	"context"
	"fmt"
)

// LikeBlob records a like; liking the same blob twice is a no-op
func (db *DB) LikeBlob(ctx context.Context, blobID, userID int64) error {
	return withRetry(ctx, func() error {
		query := `
			INSERT INTO blob_likes (blob_id, user_id)
			VALUES (?, ?)
			ON CONFLICT(blob_id, user_id) DO NOTHING
		`
		if _, err := db.conn.ExecContext(ctx, query, blobID, userID); err != nil {
			return fmt.Errorf("like blob: %w", err)
		}
		return nil
	})
}

// UnlikeBlob removes a like if present
func (db *DB) UnlikeBlob(ctx context.Context, blobID, userID int64) error {
	return withRetry(ctx, func() error {
		if _, err := db.conn.ExecContext(ctx,
			`DELETE FROM blob_likes WHERE blob_id = ? AND user_id = ?`, blobID, userID); err != nil {
			return fmt.Errorf("unlike blob: %w", err)
		}
		return nil
	})
}

// CountLikes returns the number of likes for a blob
func (db *DB) CountLikes(ctx context.Context, blobID int64) (int64, error) {
	var count int64
	if err := db.conn.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM blob_likes WHERE blob_id = ?`, blobID); err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}
	return count, nil
}

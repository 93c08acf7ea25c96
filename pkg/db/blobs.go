package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"theblob/pkg/domain"
)

// blobColumns is the select list shared by feed queries: blob fields plus
// owner info and the likes count
const blobColumns = `
	b.id, b.user_id, b.content_type, b.content, b.file_path, b.is_public,
	b.timestamp, b.ai_summary, u.username, u.first_name,
	(SELECT COUNT(*) FROM blob_likes WHERE blob_id = b.id) AS likes_count
`

// CreateBlob stores a new blob and sets its ID. The embedding may be nil when
// the model was unavailable at store time; the scheduler backfills it later.
func (db *DB) CreateBlob(ctx context.Context, blob *domain.Blob, embedding []float32) error {
	if blob.Timestamp.IsZero() {
		blob.Timestamp = time.Now()
	}

	return withRetry(ctx, func() error {
		// insert and id read must see the same connection
		return db.InTransaction(ctx, func(tx *sqlx.Tx) error {
			query := `
				INSERT INTO blobs (user_id, content_type, content, file_path, is_public, timestamp, embedding)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`
			result, err := tx.ExecContext(ctx, query,
				blob.UserID, string(blob.ContentType), blob.Content, blob.FilePath,
				blob.Public, blob.Timestamp, encodeEmbedding(embedding))
			if err != nil {
				return fmt.Errorf("insert blob: %w", err)
			}

			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("get last insert id: %w", err)
			}
			blob.ID = id
			return nil
		})
	})
}

// UpdateSummary stores the generated summary for a blob
func (db *DB) UpdateSummary(ctx context.Context, blobID int64, summary string) error {
	return withRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `UPDATE blobs SET ai_summary = ? WHERE id = ?`, summary, blobID)
		if err != nil {
			return fmt.Errorf("update summary: %w", err)
		}
		return nil
	})
}

// UpdateEmbedding stores the embedding for a blob
func (db *DB) UpdateEmbedding(ctx context.Context, blobID int64, embedding []float32) error {
	return withRetry(ctx, func() error {
		_, err := db.conn.ExecContext(ctx, `UPDATE blobs SET embedding = ? WHERE id = ?`,
			encodeEmbedding(embedding), blobID)
		if err != nil {
			return fmt.Errorf("update embedding: %w", err)
		}
		return nil
	})
}

// UpdatePublicity shares or unshares a blob. Only the owner may change
// publicity; a mismatched user gets an error.
func (db *DB) UpdatePublicity(ctx context.Context, blobID, userID int64, public bool) error {
	return withRetry(ctx, func() error {
		result, err := db.conn.ExecContext(ctx,
			`UPDATE blobs SET is_public = ? WHERE id = ? AND user_id = ?`, public, blobID, userID)
		if err != nil {
			return fmt.Errorf("update publicity: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if affected == 0 {
			return &criticalError{err: fmt.Errorf("blob %d not found or not owned by user %d", blobID, userID)}
		}
		return nil
	})
}

// GetBlob retrieves a blob visible to the given user: their own or any public one
func (db *DB) GetBlob(ctx context.Context, blobID, userID int64) (*domain.Blob, error) {
	var blob Blob
	query := `
		SELECT ` + blobColumns + `
		FROM blobs b
		LEFT JOIN users u ON b.user_id = u.user_id
		WHERE b.id = ? AND (b.user_id = ? OR b.is_public = 1)
	`
	err := db.conn.GetContext(ctx, &blob, query, blobID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("blob not found")
		}
		return nil, fmt.Errorf("get blob: %w", err)
	}
	res := blob.toDomain()
	return &res, nil
}

// GetPublicBlob retrieves a single public blob by ID
func (db *DB) GetPublicBlob(ctx context.Context, blobID int64) (*domain.Blob, error) {
	var blob Blob
	query := `
		SELECT ` + blobColumns + `
		FROM blobs b
		LEFT JOIN users u ON b.user_id = u.user_id
		WHERE b.id = ? AND b.is_public = 1
	`
	err := db.conn.GetContext(ctx, &blob, query, blobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("blob not found")
		}
		return nil, fmt.Errorf("get public blob: %w", err)
	}
	res := blob.toDomain()
	return &res, nil
}

// GetPublicBlobs retrieves one page of the public feed, newest first.
// Pages are numbered from 1.
func (db *DB) GetPublicBlobs(ctx context.Context, page, perPage int) ([]domain.Blob, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * perPage

	var blobs []Blob
	query := `
		SELECT ` + blobColumns + `
		FROM blobs b
		LEFT JOIN users u ON b.user_id = u.user_id
		WHERE b.is_public = 1
		ORDER BY b.timestamp DESC, b.id DESC
		LIMIT ? OFFSET ?
	`
	if err := db.conn.SelectContext(ctx, &blobs, query, perPage, offset); err != nil {
		return nil, fmt.Errorf("get public blobs: %w", err)
	}
	return toDomainBlobs(blobs), nil
}

// GetLatestPublicBlobs retrieves the most recent public blobs for live updates
func (db *DB) GetLatestPublicBlobs(ctx context.Context, limit int) ([]domain.Blob, error) {
	var blobs []Blob
	query := `
		SELECT ` + blobColumns + `
		FROM blobs b
		LEFT JOIN users u ON b.user_id = u.user_id
		WHERE b.is_public = 1
		ORDER BY b.timestamp DESC, b.id DESC
		LIMIT ?
	`
	if err := db.conn.SelectContext(ctx, &blobs, query, limit); err != nil {
		return nil, fmt.Errorf("get latest public blobs: %w", err)
	}
	return toDomainBlobs(blobs), nil
}

// GetPublicBlobsAfter retrieves public blobs with ID greater than the given
// one, oldest first, so the notifier can push them in publish order
func (db *DB) GetPublicBlobsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Blob, error) {
	var blobs []Blob
	query := `
		SELECT ` + blobColumns + `
		FROM blobs b
		LEFT JOIN users u ON b.user_id = u.user_id
		WHERE b.is_public = 1 AND b.id > ?
		ORDER BY b.id ASC
		LIMIT ?
	`
	if err := db.conn.SelectContext(ctx, &blobs, query, afterID, limit); err != nil {
		return nil, fmt.Errorf("get public blobs after %d: %w", afterID, err)
	}
	return toDomainBlobs(blobs), nil
}

// MaxPublicBlobID returns the highest ID among public blobs, 0 when none exist
func (db *DB) MaxPublicBlobID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := db.conn.GetContext(ctx, &id, `SELECT MAX(id) FROM blobs WHERE is_public = 1`); err != nil {
		return 0, fmt.Errorf("max public blob id: %w", err)
	}
	return id.Int64, nil
}

// SearchPublicBlobs finds public blobs whose content or summary matches the query
func (db *DB) SearchPublicBlobs(ctx context.Context, query string) ([]domain.Blob, error) {
	like := "%" + query + "%"
	var blobs []Blob
	q := `
		SELECT ` + blobColumns + `
		FROM blobs b
		LEFT JOIN users u ON b.user_id = u.user_id
		WHERE b.is_public = 1 AND (b.content LIKE ? OR b.ai_summary LIKE ?)
		ORDER BY b.timestamp DESC, b.id DESC
	`
	if err := db.conn.SelectContext(ctx, &blobs, q, like, like); err != nil {
		return nil, fmt.Errorf("search public blobs: %w", err)
	}
	return toDomainBlobs(blobs), nil
}

// GetPublicBlobsByDays retrieves public blobs from the last N days for the timeline
func (db *DB) GetPublicBlobsByDays(ctx context.Context, days int) ([]domain.Blob, error) {
	cutoff := time.Now().AddDate(0, 0, -days)
	var blobs []Blob
	query := `
		SELECT ` + blobColumns + `
		FROM blobs b
		LEFT JOIN users u ON b.user_id = u.user_id
		WHERE b.is_public = 1 AND b.timestamp >= ?
		ORDER BY b.timestamp DESC, b.id DESC
	`
	if err := db.conn.SelectContext(ctx, &blobs, query, cutoff); err != nil {
		return nil, fmt.Errorf("get public blobs by days: %w", err)
	}
	return toDomainBlobs(blobs), nil
}

// GetUserBlobs retrieves everything visible to a user: their own blobs and
// public blobs from others, newest first
func (db *DB) GetUserBlobs(ctx context.Context, userID int64) ([]domain.Blob, error) {
	var blobs []Blob
	query := `
		SELECT ` + blobColumns + `
		FROM blobs b
		LEFT JOIN users u ON b.user_id = u.user_id
		WHERE b.user_id = ? OR b.is_public = 1
		ORDER BY b.timestamp DESC, b.id DESC
	`
	if err := db.conn.SelectContext(ctx, &blobs, query, userID); err != nil {
		return nil, fmt.Errorf("get user blobs: %w", err)
	}
	return toDomainBlobs(blobs), nil
}

// GetBlobsWithoutEmbeddings lists blobs the embedding backfill worker should process
func (db *DB) GetBlobsWithoutEmbeddings(ctx context.Context, limit int) ([]domain.Blob, error) {
	var blobs []Blob
	query := `
		SELECT ` + blobColumns + `
		FROM blobs b
		LEFT JOIN users u ON b.user_id = u.user_id
		WHERE b.embedding IS NULL
		ORDER BY b.id ASC
		LIMIT ?
	`
	if err := db.conn.SelectContext(ctx, &blobs, query, limit); err != nil {
		return nil, fmt.Errorf("get blobs without embeddings: %w", err)
	}
	return toDomainBlobs(blobs), nil
}

// CountPublicBlobs returns the total number of public blobs
func (db *DB) CountPublicBlobs(ctx context.Context) (int64, error) {
	var count int64
	if err := db.conn.GetContext(ctx, &count, `SELECT COUNT(*) FROM blobs WHERE is_public = 1`); err != nil {
		return 0, fmt.Errorf("count public blobs: %w", err)
	}
	return count, nil
}

// SimilarBlobs ranks stored blobs by cosine similarity to the query embedding.
// Scope limits candidates to the user's own content or to public content from
// others; a user's own blobs get a 1.2x boost so personal notes surface first.
func (db *DB) SimilarBlobs(ctx context.Context, queryEmbedding []float32, userID int64, scope domain.SearchScope, limit int) ([]domain.SimilarBlob, error) {
	if len(queryEmbedding) == 0 {
		return nil, nil
	}

	var candidates []Blob
	query := `
		SELECT b.id, b.user_id, b.content_type, b.content, b.file_path, b.is_public,
		       b.timestamp, b.ai_summary, b.embedding, u.username, u.first_name,
		       0 AS likes_count
		FROM blobs b
		LEFT JOIN users u ON b.user_id = u.user_id
		WHERE b.embedding IS NOT NULL
	`
	var args []interface{}
	switch scope {
	case domain.ScopePublic:
		query += ` AND b.is_public = 1`
	default:
		query += ` AND (b.user_id = ? OR b.is_public = 1)`
		args = append(args, userID)
	}

	if err := db.conn.SelectContext(ctx, &candidates, query, args...); err != nil {
		return nil, fmt.Errorf("get similarity candidates: %w", err)
	}

	results := make([]domain.SimilarBlob, 0, len(candidates))
	for i := range candidates {
		embedding := decodeEmbedding(candidates[i].Embedding)
		if len(embedding) == 0 {
			continue
		}

		similarity := cosineSimilarity(queryEmbedding, embedding)
		if candidates[i].UserID == userID {
			similarity *= 1.2 // own content boost
		}

		results = append(results, domain.SimilarBlob{Blob: candidates[i].toDomain(), Similarity: similarity})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SimilarToBlob ranks public blobs by similarity to an existing public blob
func (db *DB) SimilarToBlob(ctx context.Context, blobID int64, limit int) ([]domain.SimilarBlob, error) {
	var source Blob
	err := db.conn.GetContext(ctx, &source,
		`SELECT id, embedding FROM blobs WHERE id = ? AND is_public = 1`, blobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("blob not found")
		}
		return nil, fmt.Errorf("get source blob: %w", err)
	}

	embedding := decodeEmbedding(source.Embedding)
	if len(embedding) == 0 {
		return nil, nil
	}

	similar, err := db.SimilarBlobs(ctx, embedding, 0, domain.ScopePublic, limit+1)
	if err != nil {
		return nil, err
	}

	// drop the source blob itself
	results := make([]domain.SimilarBlob, 0, limit)
	for _, s := range similar {
		if s.ID == blobID {
			continue
		}
		results = append(results, s)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

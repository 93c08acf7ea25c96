package db

import (
	"database/sql"
	"time"

	"theblob/pkg/domain"
)

// Blob is the database representation of a stored record
type Blob struct {
	ID          int64          `db:"id"`
	UserID      int64          `db:"user_id"`
	ContentType string         `db:"content_type"`
	Content     string         `db:"content"`
	FilePath    string         `db:"file_path"`
	Public      bool           `db:"is_public"`
	Timestamp   time.Time      `db:"timestamp"`
	Summary     string         `db:"ai_summary"`
	Embedding   []byte         `db:"embedding"`
	Username    sql.NullString `db:"username"`
	FirstName   sql.NullString `db:"first_name"`
	LikesCount  int            `db:"likes_count"`
}

// User is the database representation of a bot user
type User struct {
	ID        int64     `db:"user_id"`
	Username  string    `db:"username"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	CreatedAt time.Time `db:"created_at"`
}

// toDomain converts a db blob to the domain type
func (b *Blob) toDomain() domain.Blob {
	return domain.Blob{
		ID:          b.ID,
		UserID:      b.UserID,
		ContentType: domain.ContentType(b.ContentType),
		Content:     b.Content,
		FilePath:    b.FilePath,
		Public:      b.Public,
		Timestamp:   b.Timestamp,
		Summary:     b.Summary,
		Username:    b.Username.String,
		FirstName:   b.FirstName.String,
		LikesCount:  b.LikesCount,
	}
}

func toDomainBlobs(dbBlobs []Blob) []domain.Blob {
	blobs := make([]domain.Blob, len(dbBlobs))
	for i := range dbBlobs {
		blobs[i] = dbBlobs[i].toDomain()
	}
	return blobs
}

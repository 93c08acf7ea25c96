package domain

import "time"

// ContentType describes what kind of content a blob holds
type ContentType string

// content types accepted from the bot
const (
	ContentText     ContentType = "text"
	ContentPhoto    ContentType = "photo"
	ContentDocument ContentType = "document"
	ContentAnalysis ContentType = "analysis"
)

// Blob represents one stored piece of content, private to its owner
// until shared to the public feed
type Blob struct {
	ID          int64       `json:"id"`
	UserID      int64       `json:"user_id,omitempty"`
	ContentType ContentType `json:"content_type"`
	Content     string      `json:"content"`
	FilePath    string      `json:"file_path,omitempty"`
	Public      bool        `json:"is_public"`
	Timestamp   time.Time   `json:"timestamp"`
	Summary     string      `json:"ai_summary,omitempty"`

	// join fields, populated by feed queries
	Username   string `json:"username,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LikesCount int    `json:"likes_count"`
}

// SimilarBlob is a blob with its cosine similarity to a query or source blob
type SimilarBlob struct {
	Blob
	Similarity float64 `json:"similarity"`
}

// SearchScope limits similarity search to the caller's own content or to the
// public space
type SearchScope string

// search scopes
const (
	ScopePrivate SearchScope = "private"
	ScopePublic  SearchScope = "public"
)

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"theblob/pkg/config"
	"theblob/pkg/domain"
)

// fakeDB implements Database with overridable functions
type fakeDB struct {
	getPublicBlobs       func(ctx context.Context, page, perPage int) ([]domain.Blob, error)
	getPublicBlob        func(ctx context.Context, blobID int64) (*domain.Blob, error)
	getLatestPublicBlobs func(ctx context.Context, limit int) ([]domain.Blob, error)
	searchPublicBlobs    func(ctx context.Context, query string) ([]domain.Blob, error)
	getPublicBlobsByDays func(ctx context.Context, days int) ([]domain.Blob, error)
	similarToBlob        func(ctx context.Context, blobID int64, limit int) ([]domain.SimilarBlob, error)
	countPublicBlobs     func(ctx context.Context) (int64, error)
}

func (f *fakeDB) GetPublicBlobs(ctx context.Context, page, perPage int) ([]domain.Blob, error) {
	return f.getPublicBlobs(ctx, page, perPage)
}

func (f *fakeDB) GetPublicBlob(ctx context.Context, blobID int64) (*domain.Blob, error) {
	return f.getPublicBlob(ctx, blobID)
}

func (f *fakeDB) GetLatestPublicBlobs(ctx context.Context, limit int) ([]domain.Blob, error) {
	return f.getLatestPublicBlobs(ctx, limit)
}

func (f *fakeDB) SearchPublicBlobs(ctx context.Context, query string) ([]domain.Blob, error) {
	return f.searchPublicBlobs(ctx, query)
}

func (f *fakeDB) GetPublicBlobsByDays(ctx context.Context, days int) ([]domain.Blob, error) {
	return f.getPublicBlobsByDays(ctx, days)
}

func (f *fakeDB) SimilarToBlob(ctx context.Context, blobID int64, limit int) ([]domain.SimilarBlob, error) {
	return f.similarToBlob(ctx, blobID, limit)
}

func (f *fakeDB) CountPublicBlobs(ctx context.Context) (int64, error) {
	return f.countPublicBlobs(ctx)
}

// fakeConfig implements ConfigProvider
type fakeConfig struct{}

func (f *fakeConfig) GetServerConfig() (string, time.Duration) { return ":0", 5 * time.Second }

func (f *fakeConfig) GetFeedConfig() config.FeedConfig {
	return config.FeedConfig{PageSize: 10, LatestLimit: 5}
}

func testServer(db Database) *Server {
	hub := NewHub(db, 5)
	return New(&fakeConfig{}, db, hub, "test", false)
}

func TestServer_StatusHandler(t *testing.T) {
	db := &fakeDB{
		countPublicBlobs: func(ctx context.Context) (int64, error) { return 42, nil },
	}
	srv := testServer(db)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", http.NoBody)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test", resp["version"])
	assert.InEpsilon(t, 42.0, resp["public_blobs"], 0.001)
}

func TestServer_BlobsHandler(t *testing.T) {
	var gotPage, gotPerPage int
	db := &fakeDB{
		getPublicBlobs: func(ctx context.Context, page, perPage int) ([]domain.Blob, error) {
			gotPage, gotPerPage = page, perPage
			return []domain.Blob{
				{ID: 20, Content: "newest", Public: true},
				{ID: 19, Content: "older", Public: true},
			}, nil
		},
	}
	srv := testServer(db)

	t.Run("default page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/blobs", http.NoBody)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, gotPage)
		assert.Equal(t, 10, gotPerPage)

		var resp struct {
			Blobs []domain.Blob `json:"blobs"`
			Page  int           `json:"page"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Blobs, 2)
		assert.Equal(t, int64(20), resp.Blobs[0].ID)
		assert.Equal(t, 1, resp.Page)
	})

	t.Run("explicit page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/blobs?page=3", http.NoBody)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 3, gotPage)
	})

	t.Run("invalid page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/blobs?page=zero", http.NoBody)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("db error", func(t *testing.T) {
		db.getPublicBlobs = func(ctx context.Context, page, perPage int) ([]domain.Blob, error) {
			return nil, fmt.Errorf("db down")
		}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/blobs", http.NoBody)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestServer_BlobsHandlerSanitizesContent(t *testing.T) {
	db := &fakeDB{
		getPublicBlobs: func(ctx context.Context, page, perPage int) ([]domain.Blob, error) {
			return []domain.Blob{
				{ID: 1, Content: `hello <script>alert("x")</script>world`, Public: true},
			}, nil
		},
	}
	srv := testServer(db)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/blobs", http.NoBody)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "<script>")
	assert.Contains(t, rec.Body.String(), "hello")
}

func TestServer_BlobHandler(t *testing.T) {
	db := &fakeDB{
		getPublicBlob: func(ctx context.Context, blobID int64) (*domain.Blob, error) {
			if blobID != 7 {
				return nil, fmt.Errorf("not found")
			}
			return &domain.Blob{ID: 7, Content: "target", Public: true}, nil
		},
		similarToBlob: func(ctx context.Context, blobID int64, limit int) ([]domain.SimilarBlob, error) {
			assert.Equal(t, 3, limit)
			return []domain.SimilarBlob{
				{Blob: domain.Blob{ID: 5, Content: "related"}, Similarity: 0.8},
			}, nil
		},
	}
	srv := testServer(db)

	t.Run("found with similar", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/blobs/7", http.NoBody)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Blob    domain.Blob          `json:"blob"`
			Similar []domain.SimilarBlob `json:"similar"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, int64(7), resp.Blob.ID)
		require.Len(t, resp.Similar, 1)
		assert.Equal(t, int64(5), resp.Similar[0].ID)
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/blobs/99", http.NoBody)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/blobs/abc", http.NoBody)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("similar failure degrades", func(t *testing.T) {
		db.similarToBlob = func(ctx context.Context, blobID int64, limit int) ([]domain.SimilarBlob, error) {
			return nil, fmt.Errorf("no embeddings")
		}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/blobs/7", http.NoBody)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestServer_SearchHandler(t *testing.T) {
	db := &fakeDB{
		searchPublicBlobs: func(ctx context.Context, query string) ([]domain.Blob, error) {
			assert.Equal(t, "golang", query)
			return []domain.Blob{{ID: 3, Content: "a golang note"}}, nil
		},
	}
	srv := testServer(db)

	t.Run("with query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=golang", http.NoBody)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp struct {
			Blobs []domain.Blob `json:"blobs"`
			Query string        `json:"query"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Blobs, 1)
		assert.Equal(t, "golang", resp.Query)
	})

	t.Run("missing query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/search", http.NoBody)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_TimelineHandler(t *testing.T) {
	day1 := time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	db := &fakeDB{
		getPublicBlobsByDays: func(ctx context.Context, days int) ([]domain.Blob, error) {
			return []domain.Blob{
				{ID: 3, Timestamp: day1},
				{ID: 2, Timestamp: day1},
				{ID: 1, Timestamp: day2},
			}, nil
		},
	}
	srv := testServer(db)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/timeline?days=14", http.NoBody)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Timeline []struct {
			Date  string        `json:"date"`
			Blobs []domain.Blob `json:"blobs"`
		} `json:"timeline"`
		Days int `json:"days"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 14, resp.Days)
	require.Len(t, resp.Timeline, 2)
	assert.Equal(t, "2025-06-02", resp.Timeline[0].Date)
	assert.Len(t, resp.Timeline[0].Blobs, 2)
	assert.Equal(t, "2025-06-01", resp.Timeline[1].Date)

	t.Run("invalid days", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/timeline?days=1000", http.NoBody)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestServer_Ping(t *testing.T) {
	srv := testServer(&fakeDB{})

	req := httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
}

func TestServer_RunShutdown(t *testing.T) {
	db := &fakeDB{
		countPublicBlobs: func(ctx context.Context) (int64, error) { return 0, nil },
	}
	srv := testServer(db)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

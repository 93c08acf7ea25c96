package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"theblob/pkg/domain"
)

// sanitizer strips any markup from user-submitted content before it goes out
// on the public feed
var sanitizer = bluemonday.StrictPolicy()

// statusHandler returns server status with feed counters
func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	count, err := s.db.CountPublicBlobs(r.Context())
	if err != nil {
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	status := map[string]interface{}{
		"status":       "ok",
		"version":      s.version,
		"public_blobs": count,
		"time":         time.Now().UTC(),
	}
	renderJSON(w, r, http.StatusOK, status)
}

// blobsHandler serves one page of the public feed, newest first
func (s *Server) blobsHandler(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed < 1 {
			renderError(w, r, fmt.Errorf("invalid page"), http.StatusBadRequest)
			return
		}
		page = parsed
	}

	perPage := s.config.GetFeedConfig().PageSize
	blobs, err := s.db.GetPublicBlobs(r.Context(), page, perPage)
	if err != nil {
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusOK, map[string]interface{}{
		"blobs":    sanitizeBlobs(blobs),
		"page":     page,
		"per_page": perPage,
	})
}

// blobHandler serves a single public blob with similar public entries
func (s *Server) blobHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		renderError(w, r, fmt.Errorf("invalid blob ID"), http.StatusBadRequest)
		return
	}

	blob, err := s.db.GetPublicBlob(r.Context(), id)
	if err != nil {
		renderError(w, r, fmt.Errorf("blob not found"), http.StatusNotFound)
		return
	}

	similar, err := s.db.SimilarToBlob(r.Context(), id, 3)
	if err != nil {
		log.Printf("[WARN] similar lookup failed for blob %d: %v", id, err)
		similar = nil
	}
	for i := range similar {
		similar[i].Blob = sanitizeBlob(similar[i].Blob)
	}

	renderJSON(w, r, http.StatusOK, map[string]interface{}{
		"blob":    sanitizeBlob(*blob),
		"similar": similar,
	})
}

// searchHandler serves text search results over the public feed
func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		renderError(w, r, fmt.Errorf("query is required"), http.StatusBadRequest)
		return
	}

	blobs, err := s.db.SearchPublicBlobs(r.Context(), query)
	if err != nil {
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	renderJSON(w, r, http.StatusOK, map[string]interface{}{
		"blobs": sanitizeBlobs(blobs),
		"query": query,
	})
}

// timelineHandler serves recent public blobs grouped by calendar day
func (s *Server) timelineHandler(w http.ResponseWriter, r *http.Request) {
	days := 7
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 || parsed > 90 {
			renderError(w, r, fmt.Errorf("invalid days"), http.StatusBadRequest)
			return
		}
		days = parsed
	}

	blobs, err := s.db.GetPublicBlobsByDays(r.Context(), days)
	if err != nil {
		renderError(w, r, err, http.StatusInternalServerError)
		return
	}

	// preserve newest-first day order from the query
	grouped := map[string][]domain.Blob{}
	order := []string{}
	for _, blob := range blobs {
		day := blob.Timestamp.UTC().Format("2006-01-02")
		if _, ok := grouped[day]; !ok {
			order = append(order, day)
		}
		grouped[day] = append(grouped[day], sanitizeBlob(blob))
	}

	type dayGroup struct {
		Date  string        `json:"date"`
		Blobs []domain.Blob `json:"blobs"`
	}
	timeline := make([]dayGroup, 0, len(order))
	for _, day := range order {
		timeline = append(timeline, dayGroup{Date: day, Blobs: grouped[day]})
	}

	renderJSON(w, r, http.StatusOK, map[string]interface{}{
		"timeline": timeline,
		"days":     days,
	})
}

// sanitizeBlob cleans the rendered text fields of a blob
func sanitizeBlob(blob domain.Blob) domain.Blob {
	blob.Content = sanitizer.Sanitize(blob.Content)
	blob.Summary = sanitizer.Sanitize(blob.Summary)
	return blob
}

func sanitizeBlobs(blobs []domain.Blob) []domain.Blob {
	result := make([]domain.Blob, len(blobs))
	for i, blob := range blobs {
		result[i] = sanitizeBlob(blob)
	}
	return result
}

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("[ERROR] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error response as JSON
func renderError(w http.ResponseWriter, r *http.Request, err error, code int) {
	errMsg := "unknown error"
	if err != nil {
		errMsg = err.Error()
	}
	renderJSON(w, r, code, map[string]string{"error": errMsg})
}

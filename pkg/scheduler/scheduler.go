package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"golang.org/x/sync/errgroup"

	"theblob/pkg/domain"
)

// Scheduler runs the background workers: the publish notifier that pushes
// newly public blobs to the live hub, the embedding backfill, and the
// periodic database snapshot.
type Scheduler struct {
	db               Database
	embedder         Embedder
	publisher        Publisher
	snapshotter      Snapshotter
	notifyInterval   time.Duration
	embedInterval    time.Duration
	snapshotInterval time.Duration
	snapshotPath     string
	maxWorkers       int

	wg     sync.WaitGroup
	cancel context.CancelFunc

	watermark int64 // highest public blob id already announced
}

// Database interface for scheduler operations
type Database interface {
	MaxPublicBlobID(ctx context.Context) (int64, error)
	GetPublicBlobsAfter(ctx context.Context, afterID int64, limit int) ([]domain.Blob, error)
	GetBlobsWithoutEmbeddings(ctx context.Context, limit int) ([]domain.Blob, error)
	UpdateEmbedding(ctx context.Context, blobID int64, embedding []float32) error
}

// Embedder generates embedding vectors for stored content
type Embedder interface {
	Embedding(ctx context.Context, text string) ([]float32, error)
}

// Publisher delivers freshly published blobs to live feed clients
type Publisher interface {
	Publish(blobs []domain.Blob)
}

// Snapshotter writes a consistent copy of the database to a path
type Snapshotter interface {
	SnapshotTo(ctx context.Context, path string) error
}

// Config holds scheduler configuration
type Config struct {
	NotifyInterval   time.Duration
	EmbedInterval    time.Duration
	SnapshotInterval time.Duration
	SnapshotPath     string
	MaxWorkers       int
}

// NewScheduler creates a new scheduler instance. The snapshot worker runs
// only when snapshotter and path are both set.
func NewScheduler(database Database, embedder Embedder, publisher Publisher, snapshotter Snapshotter, cfg Config) *Scheduler {
	if cfg.NotifyInterval == 0 {
		cfg.NotifyInterval = 5 * time.Second
	}
	if cfg.EmbedInterval == 0 {
		cfg.EmbedInterval = time.Minute
	}
	if cfg.SnapshotInterval == 0 {
		cfg.SnapshotInterval = 30 * time.Second
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 5
	}

	return &Scheduler{
		db:               database,
		embedder:         embedder,
		publisher:        publisher,
		snapshotter:      snapshotter,
		notifyInterval:   cfg.NotifyInterval,
		embedInterval:    cfg.EmbedInterval,
		snapshotInterval: cfg.SnapshotInterval,
		snapshotPath:     cfg.SnapshotPath,
		maxWorkers:       cfg.MaxWorkers,
	}
}

// Start begins the scheduler
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	// announce only blobs published after startup
	watermark, err := s.db.MaxPublicBlobID(ctx)
	if err != nil {
		lgr.Printf("[WARN] can't read publish watermark, starting from zero: %v", err)
	}
	s.watermark = watermark

	if s.publisher != nil {
		s.wg.Add(1)
		go s.publishNotifierWorker(ctx)
	}

	if s.embedder != nil {
		s.wg.Add(1)
		go s.embeddingBackfillWorker(ctx)
	}

	if s.snapshotter != nil && s.snapshotPath != "" {
		s.wg.Add(1)
		go s.snapshotWorker(ctx)
	}

	lgr.Printf("[INFO] scheduler started, notify interval %v, embed interval %v, snapshot interval %v",
		s.notifyInterval, s.embedInterval, s.snapshotInterval)
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	lgr.Printf("[INFO] stopping scheduler...")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	lgr.Printf("[INFO] scheduler stopped")
}

// publishNotifierWorker watches for blobs made public past the watermark and
// pushes them to live clients
func (s *Scheduler) publishNotifierWorker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.notifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.notifyPublished(ctx)
		}
	}
}

// notifyPublished pushes any blobs published since the last check
func (s *Scheduler) notifyPublished(ctx context.Context) {
	blobs, err := s.db.GetPublicBlobsAfter(ctx, s.watermark, 100)
	if err != nil {
		lgr.Printf("[ERROR] failed to get published blobs: %v", err)
		return
	}
	if len(blobs) == 0 {
		return
	}

	// newest last, so clients can prepend in order
	s.publisher.Publish(blobs)
	s.watermark = blobs[len(blobs)-1].ID
	lgr.Printf("[INFO] announced %d published blobs, watermark %d", len(blobs), s.watermark)
}

// embeddingBackfillWorker generates embeddings for blobs stored without one,
// e.g. when the model endpoint was down at store time
func (s *Scheduler) embeddingBackfillWorker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.embedInterval)
	defer ticker.Stop()

	// run immediately on start
	s.backfillEmbeddings(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.backfillEmbeddings(ctx)
		}
	}
}

// backfillEmbeddings processes one batch of blobs missing embeddings
func (s *Scheduler) backfillEmbeddings(ctx context.Context) {
	blobs, err := s.db.GetBlobsWithoutEmbeddings(ctx, 20)
	if err != nil {
		lgr.Printf("[ERROR] failed to get blobs without embeddings: %v", err)
		return
	}
	if len(blobs) == 0 {
		return
	}

	lgr.Printf("[INFO] backfilling embeddings for %d blobs", len(blobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxWorkers)

	for _, blob := range blobs {
		g.Go(func() error {
			embedding, err := s.embedder.Embedding(ctx, blob.Content)
			if err != nil {
				lgr.Printf("[WARN] embedding failed for blob %d: %v", blob.ID, err)
				return nil // skip, retried next cycle
			}
			if len(embedding) == 0 {
				return nil
			}
			if err := s.db.UpdateEmbedding(ctx, blob.ID, embedding); err != nil {
				lgr.Printf("[WARN] failed to store embedding for blob %d: %v", blob.ID, err)
			}
			return nil
		})
	}

	_ = g.Wait() // workers report errors in logs, keep the batch going
}

// snapshotWorker periodically writes a consistent database copy
func (s *Scheduler) snapshotWorker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.snapshotter.SnapshotTo(ctx, s.snapshotPath); err != nil {
				lgr.Printf("[ERROR] database snapshot failed: %v", err)
				continue
			}
			lgr.Printf("[DEBUG] database snapshot written to %s", s.snapshotPath)
		}
	}
}

package aggregator

import (
	"context"
	"sync"
	"time"

	"mcpgateway/internal/api"
	"mcpgateway/internal/metrics"
	"mcpgateway/pkg/logging"
)

const (
	DefaultClassificationWorkers   = 5
	DefaultClassificationQueueSize = 1000
	classifyTimeout                = 30 * time.Second
)

// ClassificationQueue classifies and indexes tools in the background so
// that discovery never waits on the classifier. Work items are namespaced
// tool names; a name already waiting in the queue is not added twice.
//
// A failed classification leaves the tool unclassified but still pushes it
// to the search index, so it stays searchable by name.
type ClassificationQueue struct {
	classifier api.Classifier
	index      api.SearchIndex
	store      api.Store
	tools      *ToolIndex
	metrics    *metrics.Metrics
	clock      Clock

	workers int
	work    chan string

	mu      sync.Mutex
	pending map[string]struct{}
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// QueueConfig configures a ClassificationQueue.
type QueueConfig struct {
	Classifier api.Classifier
	Index      api.SearchIndex
	Store      api.Store
	Metrics    *metrics.Metrics
	Clock      Clock
	Workers    int
	QueueSize  int
}

// NewClassificationQueue creates a queue bound to tools. Call Start to run
// the workers.
func NewClassificationQueue(tools *ToolIndex, cfg QueueConfig) *ClassificationQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultClassificationWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultClassificationQueueSize
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &ClassificationQueue{
		classifier: cfg.Classifier,
		index:      cfg.Index,
		store:      cfg.Store,
		tools:      tools,
		metrics:    cfg.Metrics,
		clock:      cfg.Clock,
		workers:    cfg.Workers,
		work:       make(chan string, cfg.QueueSize),
		pending:    make(map[string]struct{}),
	}
}

// Start launches the workers.
func (q *ClassificationQueue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	logging.Debug("Classification", "Started %d classification workers", q.workers)
}

// Enqueue schedules a tool. It never blocks: when the queue is full the
// tool is dropped with a warning and picked up again on the next
// discovery that sees it change.
func (q *ClassificationQueue) Enqueue(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, dup := q.pending[name]; dup {
		return false
	}

	select {
	case q.work <- name:
		q.pending[name] = struct{}{}
		return true
	default:
		logging.Warn("Classification", "Queue full, dropping %s", name)
		q.metrics.RecordQueueDropped()
		return false
	}
}

// Pending returns the number of tools waiting for a worker.
func (q *ClassificationQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stop stops accepting work and lets the workers drain the queue until ctx
// ends, after which the remaining items are abandoned.
func (q *ClassificationQueue) Stop(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.work)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if q.cancel != nil {
			q.cancel()
		}
		<-done
	}
	if q.cancel != nil {
		q.cancel()
	}
}

func (q *ClassificationQueue) worker() {
	defer q.wg.Done()
	for name := range q.work {
		q.mu.Lock()
		delete(q.pending, name)
		q.mu.Unlock()

		if q.ctx.Err() != nil {
			continue
		}
		q.process(q.ctx, name)
	}
}

// process classifies one tool and pushes it to the index.
func (q *ClassificationQueue) process(ctx context.Context, name string) {
	rec := q.tools.Get(name)
	if rec == nil {
		// removed while queued
		return
	}

	final := rec
	if q.classifier != nil {
		cctx, cancel := context.WithTimeout(ctx, classifyTimeout)
		cls, err := q.classifier.Classify(cctx, rec.OriginalName, rec.Description, rec.InputSchema)
		cancel()

		if err != nil {
			q.metrics.RecordClassification("failure")
			logging.Warn("Classification", "%v", api.ErrClassificationFailed(name, err))
		} else {
			q.metrics.RecordClassification("success")
			updated, ok := q.tools.Update(name, rec.ContentHash, func(next *api.ToolRecord) {
				applyClassification(next, cls)
				next.UpdatedAt = q.clock.Now()
			})
			if !ok {
				// rediscovered with new content; the newer version is queued
				return
			}
			final = updated
			if q.store != nil {
				if err := q.store.UpsertTool(ctx, final); err != nil {
					logging.Warn("Classification", "Failed to persist classification of %s: %v", name, err)
				}
			}
		}
	}

	if q.index != nil {
		if cur := q.tools.Get(name); cur == nil || cur.ID != final.ID {
			// removed while classifying
			return
		}
		if err := q.index.Upsert(ctx, final); err != nil {
			logging.Warn("Classification", "Failed to index %s: %v", name, err)
		}
	}
}

func applyClassification(rec *api.ToolRecord, cls api.Classification) {
	skills := cls.SkillIDs
	if len(skills) > api.MaxSkillIDs {
		skills = skills[:api.MaxSkillIDs]
	}
	rec.SkillIDs = append([]string(nil), skills...)
	rec.PrimarySkillID = cls.PrimarySkillID
	if rec.PrimarySkillID == "" && len(rec.SkillIDs) > 0 {
		rec.PrimarySkillID = rec.SkillIDs[0]
	}
	rec.IsClassified = true
}

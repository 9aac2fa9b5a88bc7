package feedback

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/chereta-io/chereta/internal/model"
	"github.com/chereta-io/chereta/internal/storage"
	"github.com/chereta-io/chereta/internal/telemetry"
)

// Learning thresholds: how many signals of a kind it takes before the
// profile is adjusted.
const (
	minPositiveForInterest  = 3
	minDismissalsForPattern = 3
)

// learnTask asks the learner to re-derive one profile's learned signals
// from its interaction history.
type learnTask struct {
	UserID    uuid.UUID
	ProfileID uuid.UUID
}

// Learner consumes learning tasks from a bounded queue on a single
// background goroutine. Tasks are best-effort: when the queue is full the
// task is dropped and counted, the interaction that produced it is already
// durable.
type Learner struct {
	db     *storage.DB
	logger *slog.Logger

	tasks   chan learnTask
	done    chan struct{}
	cancel  context.CancelFunc
	dropped atomic.Int64
}

func NewLearner(db *storage.DB, queueSize int, logger *slog.Logger) *Learner {
	return &Learner{
		db:     db,
		logger: logger,
		tasks:  make(chan learnTask, queueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the consumer goroutine and registers queue metrics. Call
// Drain to stop.
func (l *Learner) Start(ctx context.Context) {
	l.registerMetrics()
	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	go l.loop(loopCtx)
}

// Enqueue submits a task without blocking. Returns false when the queue is
// full and the task was dropped.
func (l *Learner) Enqueue(task learnTask) bool {
	select {
	case l.tasks <- task:
		return true
	default:
		l.dropped.Add(1)
		l.logger.Warn("learning queue full, dropping task",
			"profile_id", task.ProfileID)
		return false
	}
}

func (l *Learner) loop(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-l.tasks:
			taskCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := l.process(taskCtx, task); err != nil {
				l.logger.Error("learning pass failed",
					"profile_id", task.ProfileID, "error", err)
			}
			cancel()
		}
	}
}

// Drain stops the consumer and waits for the in-flight task.
func (l *Learner) Drain(ctx context.Context) {
	if l.cancel != nil {
		l.cancel()
	}
	select {
	case <-l.done:
	case <-ctx.Done():
		l.logger.Warn("learner drain timed out")
	}
}

// process re-derives discovered interests and dismissal patterns for one
// profile from its full interaction history.
func (l *Learner) process(ctx context.Context, task learnTask) error {
	profile, err := l.db.GetProfile(ctx, task.ProfileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}

	positive, err := l.db.CountPositiveByCategory(ctx, task.UserID)
	if err != nil {
		return err
	}
	byCategory, err := l.db.CountDismissalsByCategory(ctx, task.UserID)
	if err != nil {
		return err
	}
	byRegion, err := l.db.CountDismissalsByRegion(ctx, task.UserID)
	if err != nil {
		return err
	}

	interests, changed := discoverInterests(profile, positive, dismissalExclusions(byCategory, byRegion))
	if changed {
		if err := l.db.SetDiscoveredInterests(ctx, task.ProfileID, interests); err != nil {
			return err
		}
		l.logger.Info("discovered interests updated",
			"profile_id", task.ProfileID, "interests", interests)
	}

	if hasDismissalPattern(byRegion) || hasDismissalPattern(byCategory) {
		if err := l.db.MarkProfileDirty(ctx, task.ProfileID); err != nil {
			return err
		}
	}
	return nil
}

func (l *Learner) registerMetrics() {
	meter := telemetry.Meter("chereta/learner")

	_, _ = meter.Int64ObservableGauge("chereta.learner.queue_depth",
		metric.WithDescription("Pending learning tasks"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(len(l.tasks)))
			return nil
		}),
	)
	_, _ = meter.Int64ObservableGauge("chereta.learner.dropped_total",
		metric.WithDescription("Learning tasks dropped due to a full queue"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(l.dropped.Load())
			return nil
		}),
	)
}

// discoverInterests merges categories with enough positive signal into the
// existing learned list, skipping sectors the company already targets and
// names the user keeps dismissing. Insertion order is preserved and the
// list is capped.
func discoverInterests(profile model.CompanyProfile, positiveByCategory map[string]int, excluded []string) ([]string, bool) {
	interests := append([]string(nil), profile.DiscoveredInterests...)
	changed := false

	// Deterministic scan order.
	categories := make([]string, 0, len(positiveByCategory))
	for cat := range positiveByCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		if positiveByCategory[cat] < minPositiveForInterest {
			continue
		}
		if strings.EqualFold(profile.PrimarySector, cat) {
			continue
		}
		if containsFold(profile.ActiveSectors, cat) || containsFold(interests, cat) {
			continue
		}
		if containsFold(excluded, cat) {
			continue
		}
		if len(interests) >= model.MaxDiscoveredInterests {
			break
		}
		interests = append(interests, cat)
		changed = true
	}
	return interests, changed
}

// hasDismissalPattern reports whether any name has accumulated enough
// dismissals to count as a negative preference signal.
func hasDismissalPattern(dismissals map[string]int) bool {
	for _, n := range dismissals {
		if n >= minDismissalsForPattern {
			return true
		}
	}
	return false
}

// dismissalExclusions collects the category and region names whose dismissal
// count crossed the pattern threshold. Interest discovery never adds them.
func dismissalExclusions(byCategory, byRegion map[string]int) []string {
	var out []string
	for name, n := range byCategory {
		if n >= minDismissalsForPattern {
			out = append(out, name)
		}
	}
	for name, n := range byRegion {
		if n >= minDismissalsForPattern {
			out = append(out, name)
		}
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

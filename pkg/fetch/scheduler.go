// Package fetch runs the bounded-concurrency chapter fetch and restores
// the authoritative chapter order on the way out.
package fetch

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/kerbaras/booklet/pkg/api"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ContentFetcher fetches one chapter body. The bool is false when the
// chapter is unavailable for any reason.
type ContentFetcher interface {
	GetSectionContent(ctx context.Context, sectionID string) (string, bool)
}

// Result pairs a chapter ref with its fetched body. OK false marks a
// failed fetch; downstream assembly renders a placeholder for it.
type Result struct {
	Ref  api.SectionRef
	Body string
	OK   bool
}

// Event reports one completed fetch, in completion order.
type Event struct {
	Ref   api.SectionRef
	Index int
	Total int
	OK    bool
}

// Scheduler dispatches chapter fetches to a bounded worker pool.
type Scheduler struct {
	fetcher ContentFetcher
	workers int
	limiter *rate.Limiter
	logger  *log.Logger
	onEvent func(Event)
}

// NewScheduler builds a scheduler with the given pool size and courtesy
// delay. delay <= 0 disables rate limiting.
func NewScheduler(fetcher ContentFetcher, workers int, delay time.Duration, logger *log.Logger) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	var limiter *rate.Limiter
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	return &Scheduler{
		fetcher: fetcher,
		workers: workers,
		limiter: limiter,
		logger:  logger,
	}
}

// OnProgress registers a callback invoked once per completed fetch. The
// callback may run from multiple goroutines.
func (s *Scheduler) OnProgress(fn func(Event)) {
	s.onEvent = fn
}

// FetchAll fetches every section and returns results positioned exactly
// as the input slice, regardless of completion order. Individual failures
// and panics degrade to an empty body for that one chapter; siblings are
// never affected.
func (s *Scheduler) FetchAll(ctx context.Context, sections []api.SectionRef) []Result {
	results := make([]Result, len(sections))

	g := new(errgroup.Group)
	g.SetLimit(s.workers)

	for i, ref := range sections {
		g.Go(func() error {
			body, ok := s.fetchOne(ctx, ref)
			results[i] = Result{Ref: ref, Body: body, OK: ok}

			if s.onEvent != nil {
				s.onEvent(Event{Ref: ref, Index: i, Total: len(sections), OK: ok})
			}
			if s.limiter != nil {
				// Courtesy pause after each request, not per batch.
				s.limiter.Wait(ctx)
			}
			return nil
		})
	}
	g.Wait()
	return results
}

// fetchOne isolates a single fetch so a panicking fetcher cannot take the
// pool down with it.
func (s *Scheduler) fetchOne(ctx context.Context, ref api.SectionRef) (body string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("ERROR: chapter %q (%s) fetch panicked: %v", ref.Title, ref.ID, r)
			body, ok = "", false
		}
	}()
	return s.fetcher.GetSectionContent(ctx, ref.ID)
}

package tilecache

import (
	"context"
	"sync"
	"time"

	"github.com/wudi/pdfview/observability"
	"github.com/wudi/pdfview/viewport"
)

// Scheduler drives the cache from viewport changes. A single goroutine owns
// all sequencing: it reacts to coalesced change notifications, runs the
// visibility determination, launches at most one render pass at a time, and
// arms the debounce timer that gates the expensive overlay pass.
type Scheduler struct {
	cache *Cache
	view  *viewport.Tracker
	log   observability.Logger

	debounce time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	kick   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(log observability.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = log }
}

func NewScheduler(cache *Cache, view *viewport.Tracker, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		cache:    cache,
		view:     view,
		log:      observability.NopLogger{},
		debounce: cache.cfg.DebounceInterval,
		done:     make(chan struct{}),
		kick:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the scheduling loop. Safe to call once.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go s.loop(ctx)
	})
}

// Stop cancels in-flight work and waits for the loop to exit. The cache
// itself is not disposed; that is the owner's call.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
			<-s.done
		}
	})
}

// Kick forces a full determine/preview cycle outside of viewport changes,
// used after document load or an external invalidation.
func (s *Scheduler) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

type passKind int

const (
	passPreview passKind = iota
	passOverlay
)

type passResult struct {
	kind    passKind
	outcome PassOutcome
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	timerArmed := false

	stopTimer := func() {
		if timerArmed && !timer.Stop() {
			<-timer.C
		}
		timerArmed = false
	}
	armTimer := func() {
		stopTimer()
		timer.Reset(s.debounce)
		timerArmed = true
	}

	passDone := make(chan passResult, 1)
	passRunning := false
	pendingDetermine := false
	retried := map[passKind]bool{}

	runPass := func(kind passKind) {
		passRunning = true
		go func() {
			var out PassOutcome
			switch kind {
			case passPreview:
				out = s.cache.RunPreviewPass(ctx)
			case passOverlay:
				out = s.cache.RunOverlayPass(ctx)
			}
			passDone <- passResult{kind: kind, outcome: out}
		}()
	}

	// Every viewport movement restarts the debounce window; the overlay
	// pass only runs once the view settles.
	determine := func() {
		res := s.cache.DetermineVisible()
		if res.VisibilityChanged {
			s.cache.sink.RelayoutNeeded()
		}
		if res.NeedsPreview && !passRunning {
			stopTimer()
			runPass(passPreview)
			return
		}
		armTimer()
	}

	relayout := func() {
		if err := s.cache.layout.Layout(s.view.ViewSize()); err != nil {
			s.log.Warn("relayout failed", observability.Error("error", err))
			return
		}
		cs := s.cache.layout.ContentSize()
		s.view.SetContentSize(cs)
		s.cache.ForceRefresh()
		s.cache.sink.RelayoutNeeded()
	}

	determine()

	for {
		select {
		case <-ctx.Done():
			if passRunning {
				<-passDone
			}
			return

		case <-s.view.Changes():
			if passRunning {
				pendingDetermine = true
				continue
			}
			determine()

		case <-s.kick:
			s.cache.ForceRefresh()
			if passRunning {
				pendingDetermine = true
				continue
			}
			determine()

		case res := <-passDone:
			passRunning = false
			if ctx.Err() != nil {
				return
			}
			switch {
			case res.outcome.NeedsRelayout:
				relayout()
				determine()
			case res.outcome.Retry && !retried[res.kind]:
				retried[res.kind] = true
				runPass(res.kind)
			case pendingDetermine:
				pendingDetermine = false
				retried = map[passKind]bool{}
				determine()
			default:
				retried = map[passKind]bool{}
				if res.kind == passPreview {
					// Previews done; overlays follow once the view is
					// quiet.
					armTimer()
				}
			}

		case <-timer.C:
			timerArmed = false
			if passRunning {
				pendingDetermine = true
				continue
			}
			runPass(passOverlay)
		}
	}
}

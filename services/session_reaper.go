package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dhruvagrawal1080/PDF-Chat/vectorstore"
)

// SessionReaper drops session collections whose session record is gone,
// either expired through the session TTL or lost with an in-memory store on
// restart. A collection is only dropped after it has been seen without a
// session for longer than grace, so a document still being ingested, here or
// on another instance, is left alone.
type SessionReaper struct {
	store    vectorstore.Store
	sessions SessionStore
	grace    time.Duration
	log      *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	orphans map[string]time.Time // collection -> first seen without a session
}

func NewSessionReaper(store vectorstore.Store, sessions SessionStore, grace time.Duration, log *zap.Logger) *SessionReaper {
	return &SessionReaper{
		store:    store,
		sessions: sessions,
		grace:    grace,
		log:      log,
		now:      time.Now,
		orphans:  make(map[string]time.Time),
	}
}

// Sweep runs one pass over the store and returns how many collections it
// dropped.
func (r *SessionReaper) Sweep(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names, err := r.store.ListCollections(ctx)
	if err != nil {
		return 0, fmt.Errorf("list collections: %w", err)
	}

	now := r.now()
	orphaned := make(map[string]bool)
	dropped := 0
	var errs []error
	for _, name := range names {
		id, ok := strings.CutPrefix(name, sessionCollectionPrefix)
		if !ok || id == "" {
			continue
		}
		_, found, err := r.sessions.Get(ctx, id)
		if err != nil {
			return dropped, fmt.Errorf("look up session %s: %w", id, err)
		}
		if found {
			continue
		}

		orphaned[name] = true
		first, tracked := r.orphans[name]
		if !tracked {
			r.orphans[name] = now
			continue
		}
		if now.Sub(first) < r.grace {
			continue
		}
		if err := r.store.DeleteCollection(ctx, name); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(r.orphans, name)
		dropped++
		r.log.Info("Dropped collection of expired session", zap.String("collection", name))
	}

	for name := range r.orphans {
		if !orphaned[name] {
			delete(r.orphans, name)
		}
	}
	return dropped, errors.Join(errs...)
}

// Run sweeps every interval until ctx is cancelled.
func (r *SessionReaper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.log.Info("Session reaper started", zap.Duration("interval", interval), zap.Duration("grace", r.grace))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				r.log.Warn("Session sweep failed", zap.Int("dropped", n), zap.Error(err))
			}
		}
	}
}

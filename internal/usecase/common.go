package usecase

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"listing_orchestrator/config"
	"listing_orchestrator/internal/session"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// jitter draws uniformly random durations; safe for concurrent use.
type jitter struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newJitter() *jitter {
	return &jitter{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// between returns a duration in [min, max].
func (j *jitter) between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return min + time.Duration(j.rnd.Int63n(int64(max-min)+1))
}

// DelayRange is an inclusive random delay window.
type DelayRange struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
}

// ClassifierFrom builds the location classifier from the configured markers.
func ClassifierFrom(cfg *config.Config) session.Classifier {
	c := session.DefaultClassifier
	if len(cfg.HomePatterns) > 0 {
		c.Home = cfg.HomePatterns
	}
	if len(cfg.LoginMarkers) > 0 {
		c.Login = cfg.LoginMarkers
	}
	if len(cfg.InterventionMarkers) > 0 {
		c.Intervention = cfg.InterventionMarkers
	}
	return c
}

// Package downloader runs the bounded-concurrency download pipeline. Jobs
// are dispatched in batch order to a CLI backend behind a shared rate
// limiter; transient failures retry with backoff, quota errors put the
// backend on a cooldown that new dispatches wait out.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	cfg "trackdrop/src/config"
	"trackdrop/src/models"
	"trackdrop/src/util"
)

type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateRetried   State = "retried"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Job is one track (or album) moving through the pipeline.
type Job struct {
	ID       uuid.UUID
	Track    models.Track
	State    State
	Attempts int
	Path     string // what the backend produced, file or directory
	Err      error
}

// Backend fetches a single descriptor and reports where it landed.
type Backend interface {
	Name() string
	Fetch(ctx context.Context, track models.Track) (string, error)
}

type Scheduler struct {
	Cfg     *cfg.DownloadConfig
	Backend Backend

	limiter    *rate.Limiter
	OnProgress func(*Job)

	mu            sync.Mutex
	cooldownUntil time.Time
}

func NewScheduler(cfg *cfg.DownloadConfig) *Scheduler { // pick the backend engine from config
	var backend Backend
	switch cfg.Backend {
	case "streamrip":
		backend = NewStreamrip(cfg)
	case "deemix":
		backend = NewDeemix(cfg)
	default:
		log.Fatalf("download backend '%s' not supported", cfg.Backend)
	}

	return &Scheduler{
		Cfg:     cfg,
		Backend: backend,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
	}
}

// Schedule dispatches the batch in order and waits for every job to settle.
// Completion order is whatever the backend delivers; the returned slice keeps
// batch order.
func (c *Scheduler) Schedule(ctx context.Context, tracks []models.Track) []*Job {
	jobs := make([]*Job, len(tracks))
	for i, track := range tracks {
		jobs[i] = &Job{ID: uuid.New(), Track: track, State: StateQueued}
	}

	var g errgroup.Group
	g.SetLimit(c.Cfg.MaxConcurrent)

	for _, job := range jobs {
		g.Go(func() error {
			c.runJob(ctx, job)
			return nil
		})
	}
	_ = g.Wait() // job outcomes live on the jobs themselves

	return jobs
}

func (c *Scheduler) runJob(ctx context.Context, job *Job) {
	policy := backoff.NewExponentialBackOff()
	quotaWaits := 0

	for job.Attempts < c.Cfg.Attempts {
		if err := c.waitTurn(ctx); err != nil {
			c.settle(job, StateFailed, err)
			return
		}

		job.Attempts++
		c.progress(job, StateRunning)

		path, err := c.Backend.Fetch(ctx, job.Track)
		if err == nil {
			job.Path = path
			c.settle(job, StateSucceeded, nil)
			return
		}

		switch {
		case errors.Is(err, util.ErrQuota):
			// provider pushed back; everyone backs off, this attempt
			// doesn't count against the job
			quotaWaits++
			if quotaWaits > c.Cfg.Attempts {
				c.settle(job, StateFailed, err)
				return
			}
			c.startCooldown()
			job.Attempts--
			job.Err = err
			c.progress(job, StateRetried)
		case util.Retryable(err):
			job.Err = err
			c.progress(job, StateRetried)
			select {
			case <-time.After(policy.NextBackOff()):
			case <-ctx.Done():
				c.settle(job, StateFailed, ctx.Err())
				return
			}
		default:
			c.settle(job, StateFailed, err)
			return
		}
	}
	c.settle(job, StateFailed, fmt.Errorf("gave up after %d attempts: %w", job.Attempts, job.Err))
}

// waitTurn blocks until the backend cooldown (if any) has passed and the
// rate limiter grants a slot.
func (c *Scheduler) waitTurn(ctx context.Context) error {
	for {
		c.mu.Lock()
		wait := time.Until(c.cooldownUntil)
		c.mu.Unlock()
		if wait <= 0 {
			break
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return c.limiter.Wait(ctx)
}

func (c *Scheduler) startCooldown() {
	until := time.Now().Add(time.Duration(c.Cfg.CooldownSec) * time.Second)
	c.mu.Lock()
	if until.After(c.cooldownUntil) {
		c.cooldownUntil = until
		log.Printf("[%s] quota hit, backend cooling down for %ds", c.Backend.Name(), c.Cfg.CooldownSec)
	}
	c.mu.Unlock()
}

func (c *Scheduler) settle(job *Job, state State, err error) {
	if err != nil {
		job.Err = err
	}
	c.progress(job, state)
}

func (c *Scheduler) progress(job *Job, state State) {
	job.State = state
	if c.OnProgress != nil {
		c.OnProgress(job)
	}
}

// Sweep clears stray files the backend left at the top of the download dir
// after the organizer has moved everything it wanted.
func (c *Scheduler) Sweep() {
	entries, err := os.ReadDir(c.Cfg.DownloadDir)
	if err != nil {
		log.Printf("failed to read directory: %s", err.Error())
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			if err := os.Remove(path.Join(c.Cfg.DownloadDir, entry.Name())); err != nil {
				log.Printf("failed to remove file: %s", err.Error())
			}
		}
	}
}

func containsLower(str string, substr string) bool {

	return strings.Contains(
		strings.ToLower(str),
		strings.ToLower(substr),
	)
}

func sanitizeName(s string) string { // return string with only letters and digits
	var sanitizer = regexp.MustCompile(`[^\p{L}\d]+`)
	return sanitizer.ReplaceAllString(s, "")
}

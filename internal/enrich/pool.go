package enrich

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/model"
)

// Queue-level failure messages stored on jobs that never ran.
const (
	msgQueueFull = "enrichment queue is full"
	msgStopped   = "enrichment is shutting down"
)

// Options tunes a Pool.
type Options struct {
	Workers   int
	QueueSize int
	// Timeout bounds one scrape.
	Timeout time.Duration
	// Retention is how long finished jobs stay pollable.
	Retention time.Duration
	// SweepEvery is the janitor period; defaults to Retention/4.
	SweepEvery time.Duration
}

// Pool runs enrichment jobs on a fixed set of workers and keeps their state
// for polling. Submit never blocks.
type Pool struct {
	scraper Scraper
	opts    Options
	log     *zap.Logger
	now     func() time.Time

	queue chan uuid.UUID
	stop  chan struct{}
	wg    sync.WaitGroup

	// ctx is cancelled on Stop so in-flight scrapes end early.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[uuid.UUID]*model.EnrichmentJob
	stopped bool
}

// NewPool starts the workers and the janitor.
func NewPool(scraper Scraper, opts Options, log *zap.Logger) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Retention <= 0 {
		opts.Retention = time.Hour
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = opts.Retention / 4
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		scraper: scraper,
		opts:    opts,
		log:     log,
		now:     time.Now,
		queue:   make(chan uuid.UUID, opts.QueueSize),
		stop:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[uuid.UUID]*model.EnrichmentJob),
	}
	p.wg.Add(opts.Workers + 1)
	for i := 0; i < opts.Workers; i++ {
		go p.worker(i)
	}
	go p.janitor()
	log.Info("enrichment workers started", zap.Int("workers", opts.Workers), zap.Int("queue", opts.QueueSize))
	return p
}

// Submit registers a job for profileURL and queues it. A full queue or a
// stopped pool yields a job that is already failed, not an error.
func (p *Pool) Submit(userID uuid.UUID, profileURL string) (uuid.UUID, error) {
	u, err := url.Parse(profileURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v := &errs.ValidationError{}
		v.Add("linkedin_url", "must be an http(s) URL")
		return uuid.Nil, v
	}
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	job := &model.EnrichmentJob{ID: id, UserID: userID, URL: profileURL, Status: model.JobPending, CreatedAt: p.now()}
	p.jobs[id] = job
	if p.stopped {
		p.finishLocked(job, nil, msgStopped)
		return id, nil
	}
	select {
	case p.queue <- id:
	default:
		p.log.Warn("enrichment queue full", zap.String("job", id.String()))
		p.finishLocked(job, nil, msgQueueFull)
	}
	return id, nil
}

// Get returns a snapshot of the job. Jobs of other users and evicted jobs are errs.ErrNotFound.
func (p *Pool) Get(userID, id uuid.UUID) (model.EnrichmentJob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	if !ok || j.UserID != userID {
		return model.EnrichmentJob{}, errs.ErrNotFound
	}
	out := *j
	if j.Result != nil {
		r := *j.Result
		out.Result = &r
	}
	return out, nil
}

// Stop refuses new work, cancels in-flight scrapes and waits for all goroutines.
// Jobs still queued are failed.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()

	p.log.Info("stopping enrichment workers")
	close(p.stop)
	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
drain:
	for {
		select {
		case id := <-p.queue:
			if j, ok := p.jobs[id]; ok {
				p.finishLocked(j, nil, msgStopped)
			}
		default:
			break drain
		}
	}
	p.mu.Unlock()
	p.log.Info("enrichment workers stopped")
}

func (p *Pool) worker(n int) {
	defer p.wg.Done()
	for {
		select {
		case id := <-p.queue:
			p.run(id)
		case <-p.stop:
			p.log.Debug("enrichment worker exiting", zap.Int("worker", n))
			return
		}
	}
}

func (p *Pool) run(id uuid.UUID) {
	p.mu.Lock()
	j, ok := p.jobs[id]
	var target string
	if ok {
		target = j.URL
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.opts.Timeout)
	res, err := p.safeScrape(ctx, target)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		msg := err.Error()
		var se *StatusError
		if !errors.As(err, &se) {
			p.log.Warn("enrichment failed", zap.String("job", id.String()), zap.Error(err))
		}
		p.finishLocked(j, nil, msg)
		return
	}
	p.finishLocked(j, &res, "")
}

// safeScrape turns a scraper panic into a job failure.
func (p *Pool) safeScrape(ctx context.Context, target string) (res model.EnrichmentResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic in scraper", zap.Any("reason", r), zap.String("url", target))
			err = errors.New("internal error")
		}
	}()
	return p.scraper.Scrape(ctx, target)
}

func (p *Pool) finishLocked(j *model.EnrichmentJob, res *model.EnrichmentResult, failure string) {
	j.DoneAt = p.now()
	if res != nil {
		j.Status, j.Result = model.JobSuccess, res
		return
	}
	j.Status, j.Error = model.JobFailure, failure
}

func (p *Pool) janitor() {
	defer p.wg.Done()
	t := time.NewTicker(p.opts.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			p.sweep()
		case <-p.stop:
			return
		}
	}
}

// sweep evicts finished jobs older than the retention and returns how many went.
func (p *Pool) sweep() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := p.now().Add(-p.opts.Retention)
	n := 0
	for id, j := range p.jobs {
		if j.Status != model.JobPending && j.DoneAt.Before(cutoff) {
			delete(p.jobs, id)
			n++
		}
	}
	if n > 0 {
		p.log.Debug("enrichment jobs evicted", zap.Int("count", n))
	}
	return n
}

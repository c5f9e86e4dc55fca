// Package pipeline normalizes raw listings, removes duplicates and hands
// products to output writers.
package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aluiziolira/go-product-finder/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

const (
	defaultBuffer    = 512
	defaultBatchSize = 64
	defaultSeenSize  = 4096
)

// OutputWriter defines the interface for product output.
type OutputWriter interface {
	Write(products []models.NormalizedProduct) error
	Close() error
	Validate() error
}

// Stats counts what the pipeline did with its input.
type Stats struct {
	Processed  int
	Duplicates int
	Synthetic  int
}

// Pipeline normalizes listings on worker goroutines, drops duplicates keyed
// by source and id, and writes batches to its writer.
type Pipeline struct {
	writer    OutputWriter
	ch        chan models.RawListing
	batchSize int

	wg sync.WaitGroup

	seen *lru.Cache[string, struct{}]

	statsMu sync.Mutex
	stats   Stats

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithBatchSize sets how many products are buffered per writer call.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// NewPipeline builds a pipeline with a modest in-memory buffer.
func NewPipeline(writer OutputWriter, opts ...Option) *Pipeline {
	seen, err := lru.New[string, struct{}](defaultSeenSize)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	p := &Pipeline{
		writer:    writer,
		ch:        make(chan models.RawListing, defaultBuffer),
		batchSize: defaultBatchSize,
		seen:      seen,
		shutdown:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches worker goroutines.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues listings for normalization.
func (p *Pipeline) Process(listings ...models.RawListing) error {
	if len(listings) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, l := range listings {
		if err := p.enqueue(l); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to drain the queue and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		close(p.ch)
	})

	p.wg.Wait()
	p.signalShutdown()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]models.NormalizedProduct, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	failed := false
	for raw := range p.ch {
		if failed {
			continue
		}
		product, ok := p.prepare(raw)
		if !ok {
			continue
		}
		batch = append(batch, product)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				failed = true
			}
		}
	}

	if failed {
		return
	}
	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) prepare(raw models.RawListing) (models.NormalizedProduct, bool) {
	product := Normalize(raw)

	key := product.Source + "|" + product.ID
	if exists, _ := p.seen.ContainsOrAdd(key, struct{}{}); exists {
		p.statsMu.Lock()
		p.stats.Duplicates++
		p.statsMu.Unlock()
		slog.Debug("dropping duplicate listing", slog.String("key", key))
		return product, false
	}

	p.statsMu.Lock()
	p.stats.Processed++
	if product.Synthetic {
		p.stats.Synthetic++
	}
	p.statsMu.Unlock()
	return product, true
}

func (p *Pipeline) enqueue(l models.RawListing) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.ch <- l:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return
	}
	p.err = err
	p.closed = true
	p.signalShutdown()
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

// Package ocr runs asynchronous text extraction for uploaded documents.
// Extraction never blocks or fails an upload: jobs go through a bounded
// in-process queue and a small worker pool, with bounded retries and a
// per-attempt timeout around the extractor.
package ocr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docvault/internal/docs"
	"docvault/internal/model"
)

// Options tunes the coordinator. Zero values fall back to defaults.
type Options struct {
	Workers    int
	QueueSize  int
	MaxRetries int
	Timeout    time.Duration
	Backoff    time.Duration
}

const (
	defaultWorkers    = 2
	defaultQueueSize  = 64
	defaultMaxRetries = 3
	defaultTimeout    = 8 * time.Second
	defaultBackoff    = 2 * time.Second
)

type job struct {
	documentID   string
	content      []byte
	contentType  string
	documentType string
}

// Coordinator implements the OCRQueue interface with an in-process
// worker pool. Results are applied idempotently: reprocessing a
// document overwrites the same columns with the same values.
type Coordinator struct {
	store   docs.MetadataStore
	extract docs.Extractor
	logger  docs.Logger
	opts    Options

	jobs chan job
	wg   sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewCoordinator creates a coordinator. Call Start before enqueuing.
func NewCoordinator(store docs.MetadataStore, extractor docs.Extractor, opts Options, logger docs.Logger) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}

	return &Coordinator{
		store:   store,
		extract: extractor,
		logger:  logger,
		opts:    opts,
		jobs:    make(chan job, opts.QueueSize),
	}
}

// Start launches the worker pool.
func (c *Coordinator) Start() {
	for i := 0; i < c.opts.Workers; i++ {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			for j := range c.jobs {
				c.process(j)
			}
		}()
	}
}

// Enqueue hands a document to the workers. It never blocks: a full
// queue returns an error and the caller marks the record FAILED.
func (c *Coordinator) Enqueue(documentID string, content []byte, contentType, documentType string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return fmt.Errorf("ocr queue is closed")
	}

	select {
	case c.jobs <- job{
		documentID:   documentID,
		content:      content,
		contentType:  contentType,
		documentType: documentType,
	}:
		return nil
	default:
		return fmt.Errorf("ocr queue is full (%d jobs)", c.opts.QueueSize)
	}
}

// Close stops accepting jobs and waits for in-flight work to finish.
// Queued jobs are still processed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.jobs)
	c.mu.Unlock()

	c.wg.Wait()
}

// process runs one extraction job with bounded retries. Each attempt is
// capped by the configured timeout; backoff between attempts grows
// linearly. A job that exhausts its retries marks the record FAILED
// without touching the stored document.
func (c *Coordinator) process(j job) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.MaxRetries; attempt++ {
		fields, err := c.attempt(j)
		if err == nil {
			if updErr := c.store.UpdateOCR(context.Background(), j.documentID, model.OCRComplete, fields); updErr != nil {
				c.logger.Warn("applying ocr result failed", "document_id", j.documentID, "error", updErr)
				return
			}
			c.logger.Info("ocr complete", "document_id", j.documentID, "attempts", attempt)
			return
		}

		lastErr = err
		c.logger.Warn("ocr attempt failed",
			"document_id", j.documentID,
			"attempt", attempt,
			"max_retries", c.opts.MaxRetries,
			"error", err,
		)
		if attempt < c.opts.MaxRetries {
			time.Sleep(time.Duration(attempt) * c.opts.Backoff)
		}
	}

	c.logger.Error("ocr failed after retries", "document_id", j.documentID, "error", lastErr)
	if err := c.store.UpdateOCR(context.Background(), j.documentID, model.OCRFailed, nil); err != nil {
		c.logger.Warn("marking ocr failed", "document_id", j.documentID, "error", err)
	}
}

func (c *Coordinator) attempt(j job) (*model.OCRFields, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.Timeout)
	defer cancel()

	return c.extract.Extract(ctx, j.content, j.contentType, j.documentType)
}

// Compile-time check that Coordinator implements docs.OCRQueue
var _ docs.OCRQueue = (*Coordinator)(nil)

package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"rentalscope/internal/models"
)

var ErrQueueClosed = errors.New("queue is closed")

// Handler processes one full batch of candidates.
type Handler func(ctx context.Context, batch []models.Listing) error

// Batcher accumulates extracted listings and hands them to the handler in
// batches of at most maxSize, in push order.
type Batcher struct {
	items   []models.Listing
	maxSize int
	closed  bool
	mu      sync.Mutex
	logger  *logrus.Logger
	handler Handler
	batches int
}

// NewBatcher creates a batcher that flushes every maxSize items
func NewBatcher(maxSize int, handler Handler, logger *logrus.Logger) *Batcher {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Batcher{
		items:   make([]models.Listing, 0, maxSize),
		maxSize: maxSize,
		logger:  logger,
		handler: handler,
	}
}

// Push adds a listing and flushes when the batch is full. The returned error
// is the handler's; the batch is dropped from the queue either way.
func (b *Batcher) Push(ctx context.Context, listing models.Listing) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrQueueClosed
	}
	b.items = append(b.items, listing)
	if len(b.items) < b.maxSize {
		return nil
	}
	return b.flushLocked(ctx)
}

func (b *Batcher) flushLocked(ctx context.Context) error {
	if len(b.items) == 0 {
		return nil
	}
	batch := b.items
	b.items = make([]models.Listing, 0, b.maxSize)
	b.batches++

	b.logger.WithFields(logrus.Fields{
		"batch":      b.batches,
		"batch_size": len(batch),
	}).Debug("Flushing batch")

	return b.handler(ctx, batch)
}

// Close flushes what is left and rejects further pushes.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.flushLocked(ctx)
}

// Len returns the number of listings waiting for the next flush
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Batches returns how many batches have been handed off so far
func (b *Batcher) Batches() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.batches
}

// Package spool persists records in the background so that callers never
// wait on storage.
package spool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("spool closed")

// ErrFull is returned by Enqueue when MaxPending items are already queued.
var ErrFull = errors.New("spool full")

// Options configures a Spool.
type Options struct {
	// MaxPending bounds the queue. Zero means 10000.
	MaxPending int

	// Attempts is the number of write attempts per item. Zero means 3.
	Attempts int

	// Backoff is the delay after the first failed write; it doubles per attempt.
	Backoff time.Duration

	// OnFailed is called when an item could not be written after all attempts.
	OnFailed func(item any, err error)

	Logger *slog.Logger
}

// Spool is a bounded FIFO drained by a single background writer.
type Spool[T any] struct {
	write func(context.Context, T) error
	opts  Options

	mu       sync.Mutex
	items    []T
	inflight *T
	closed   bool

	signal chan struct{}
	done   chan struct{}
}

// New starts a spool that hands each item to write.
func New[T any](write func(context.Context, T) error, opts Options) *Spool[T] {
	if opts.MaxPending <= 0 {
		opts.MaxPending = 10000
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Spool[T]{
		write:  write,
		opts:   opts,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Enqueue adds an item without blocking.
func (s *Spool[T]) Enqueue(item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if len(s.items) >= s.opts.MaxPending {
		return ErrFull
	}
	s.items = append(s.items, item)

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns a snapshot of items not yet written, including the one
// currently being written.
func (s *Spool[T]) Pending() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, 0, len(s.items)+1)
	if s.inflight != nil {
		out = append(out, *s.inflight)
	}
	return append(out, s.items...)
}

// Len returns the number of items not yet written.
func (s *Spool[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items)
	if s.inflight != nil {
		n++
	}
	return n
}

// Flush waits until every enqueued item has been written or dropped.
func (s *Spool[T]) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for s.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops accepting items and waits for the queue to drain.
func (s *Spool[T]) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.signal)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Spool[T]) next() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if len(s.items) == 0 {
		return zero, false
	}
	item := s.items[0]
	s.items = s.items[1:]
	s.inflight = &item
	return item, true
}

func (s *Spool[T]) finish() {
	s.mu.Lock()
	s.inflight = nil
	s.mu.Unlock()
}

func (s *Spool[T]) run() {
	defer close(s.done)
	for {
		for {
			item, ok := s.next()
			if !ok {
				break
			}
			s.writeWithRetry(item)
			s.finish()
		}
		if _, open := <-s.signal; !open {
			// Drain anything enqueued between the last pass and Close.
			for {
				item, ok := s.next()
				if !ok {
					return
				}
				s.writeWithRetry(item)
				s.finish()
			}
		}
	}
}

func (s *Spool[T]) writeWithRetry(item T) {
	delay := s.opts.Backoff
	var err error
	for attempt := 1; attempt <= s.opts.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = s.write(ctx, item)
		cancel()
		if err == nil {
			return
		}
		s.opts.Logger.Warn("background write failed",
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		if attempt < s.opts.Attempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	s.opts.Logger.Error("dropping record after failed writes",
		slog.Int("attempts", s.opts.Attempts),
		slog.Any("error", err))
	if s.opts.OnFailed != nil {
		s.opts.OnFailed(item, err)
	}
}

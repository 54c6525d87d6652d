package batch

import (
	"context"
	"sync"
	"time"
)

// FlushFunc receives a batch in arrival order. The slice is reused after
// the call returns.
type FlushFunc[T any] func(ctx context.Context, items []T) error

// Config controls when a batch is flushed.
type Config struct {
	MaxSize      int           // flush once this many items are pending
	MaxWait      time.Duration // flush a non-empty batch at least this often
	Buffer       int           // queued items before TryAdd starts refusing
	FlushTimeout time.Duration // deadline handed to each FlushFunc call
}

func DefaultConfig() Config {
	return Config{
		MaxSize:      64,
		MaxWait:      50 * time.Millisecond,
		Buffer:       256,
		FlushTimeout: 2 * time.Second,
	}
}

// Batcher collects items from many producers and hands them to a single
// consumer in batches.
type Batcher[T any] struct {
	cfg     Config
	flush   FlushFunc[T]
	onError func(err error, items []T)

	in        chan T
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New starts the batching worker. onError may be nil.
func New[T any](cfg Config, flush FlushFunc[T], onError func(err error, items []T)) *Batcher[T] {
	def := DefaultConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = def.MaxWait
	}
	if cfg.Buffer < 0 {
		cfg.Buffer = 0
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = def.FlushTimeout
	}

	b := &Batcher[T]{
		cfg:     cfg,
		flush:   flush,
		onError: onError,
		in:      make(chan T, cfg.Buffer),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// TryAdd queues item without blocking. It returns false when the buffer is
// full or the batcher is closed.
func (b *Batcher[T]) TryAdd(item T) bool {
	select {
	case <-b.stop:
		return false
	default:
	}

	select {
	case b.in <- item:
		return true
	default:
		return false
	}
}

func (b *Batcher[T]) run() {
	defer close(b.done)

	pending := make([]T, 0, b.cfg.MaxSize)
	timer := time.NewTimer(b.cfg.MaxWait)
	defer timer.Stop()

	emit := func() {
		if len(pending) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.FlushTimeout)
		if err := b.flush(ctx, pending); err != nil && b.onError != nil {
			b.onError(err, pending)
		}
		cancel()
		pending = pending[:0]
	}

	for {
		select {
		case item := <-b.in:
			pending = append(pending, item)
			if len(pending) >= b.cfg.MaxSize {
				emit()
			}
		case <-timer.C:
			emit()
			timer.Reset(b.cfg.MaxWait)
		case <-b.stop:
			for {
				select {
				case item := <-b.in:
					pending = append(pending, item)
					if len(pending) >= b.cfg.MaxSize {
						emit()
					}
				default:
					emit()
					return
				}
			}
		}
	}
}

// Close flushes everything queued and waits for the worker to exit.
func (b *Batcher[T]) Close() {
	b.closeOnce.Do(func() { close(b.stop) })
	<-b.done
}

// Package asynclog provides a bounded, non-blocking print logger.
//
// Any number of producers (including goroutines pinned to OS threads) hand
// messages to a single consumer goroutine, which prints them in arrival
// order. Producers never block and never observe an error: a message offered
// to a full queue or to a closed logger is silently dropped. Logging can
// therefore never stall or fail a business operation — the trade is that
// under pressure some messages are lost rather than delaying the caller.
package asynclog

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultCapacity is the queue size used when no capacity option is given.
const DefaultCapacity = 128

// config holds optional settings for New.
type config struct {
	capacity int
	w        io.Writer
}

// Option is a functional option for New.
type Option func(*config)

// WithCapacity sets the queue size. Values below 1 fall back to
// DefaultCapacity.
func WithCapacity(n int) Option {
	return func(c *config) {
		if n >= 1 {
			c.capacity = n
		}
	}
}

// WithWriter redirects output away from os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.w = w
		}
	}
}

// Logger is the bounded print queue. Construct with New; the zero value is
// not usable.
type Logger struct {
	ch        chan string
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	w         io.Writer
}

// New starts the consumer goroutine and returns the logger. Call Close to
// flush and stop it.
func New(opts ...Option) *Logger {
	cfg := &config{capacity: DefaultCapacity, w: os.Stdout}
	for _, o := range opts {
		o(cfg)
	}

	l := &Logger{
		ch:   make(chan string, cfg.capacity),
		done: make(chan struct{}),
		w:    cfg.w,
	}
	l.wg.Add(1)
	go l.consume()
	return l
}

// Send offers msg to the queue and returns immediately. If the logger is
// closed or the queue is full, msg is dropped.
func (l *Logger) Send(msg string) {
	select {
	case l.ch <- msg:
	case <-l.done:
	default:
	}
}

// Sendf formats like fmt.Sprintf and offers the result to the queue.
func (l *Logger) Sendf(format string, args ...any) {
	l.Send(fmt.Sprintf(format, args...))
}

// Close drains messages already queued, stops the consumer, and waits for it
// to exit. Sends arriving after Close are dropped. Close is idempotent.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	l.wg.Wait()
}

// consume is the single reader: messages print in the order the queue
// received them.
func (l *Logger) consume() {
	defer l.wg.Done()
	for {
		select {
		case msg := <-l.ch:
			fmt.Fprintln(l.w, msg)
		case <-l.done:
			for {
				select {
				case msg := <-l.ch:
					fmt.Fprintln(l.w, msg)
				default:
					return
				}
			}
		}
	}
}

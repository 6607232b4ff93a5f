// Package sse relays a blocking sequence of text increments to a remote
// consumer as an ordered event stream: start, thinking, one content event
// per increment, then exactly one done or error.
//
// The increments are produced on their own goroutine and cross a bounded
// queue. The relay loop interleaves keepalive frames while the producer is
// slow and stops emitting once the consumer goes away, but it always lets
// the producer run to completion.
package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/samsaffron/chatstream/internal/llm"
)

const (
	DefaultQueueSize     = 100
	DefaultHeartbeat     = 15 * time.Second
	DefaultMaxConcurrent = 8
)

// Observer receives bridge lifecycle notifications. Implementations must be
// safe for concurrent use.
type Observer interface {
	StreamOpened()
	StreamClosed()
	EventEmitted(name string)
	ConsumerGone()
}

type nopObserver struct{}

func (nopObserver) StreamOpened()       {}
func (nopObserver) StreamClosed()       {}
func (nopObserver) EventEmitted(string) {}
func (nopObserver) ConsumerGone()       {}

type Options struct {
	QueueSize int
	Heartbeat time.Duration
	// MaxConcurrent bounds the number of producers running at once.
	MaxConcurrent int64
	Logger        *log.Logger
	Observer      Observer
}

// Bridge is shared by all requests; every Run gets its own queue.
type Bridge struct {
	queueSize int
	heartbeat time.Duration
	slots     *semaphore.Weighted
	logger    *log.Logger
	observer  Observer
}

func NewBridge(opts Options) *Bridge {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Bridge{
		queueSize: opts.QueueSize,
		heartbeat: opts.Heartbeat,
		slots:     semaphore.NewWeighted(opts.MaxConcurrent),
		logger:    opts.Logger.WithPrefix("sse"),
		observer:  opts.Observer,
	}
}

// NewRequestID returns a fresh request identifier.
func NewRequestID() string {
	return uuid.NewString()
}

type RunRequest struct {
	// RequestID is generated when empty.
	RequestID string
	Start     StartInfo
	// Open starts the blocking increment sequence. It is called on the
	// producer goroutine.
	Open    func() (llm.Stream, error)
	Emitter Emitter
}

// Outcome describes how a Run ended.
type Outcome struct {
	RequestID string
	// Text is every increment the producer delivered, concatenated.
	Text string
	// Err is the producer failure, if any.
	Err error
	// Disconnected is set when the consumer went away before the end.
	Disconnected bool
}

// chunk is a queue item. end marks the end of the sequence and carries the
// producer failure, so no text increment can be mistaken for it.
type chunk struct {
	text string
	end  bool
	err  error
}

// Run relays the sequence opened by req.Open to req.Emitter. ctx belongs to
// the consumer: once it is done nothing more is emitted, but Run still
// waits for the producer to finish before returning.
func (b *Bridge) Run(ctx context.Context, req RunRequest) Outcome {
	if req.RequestID == "" {
		req.RequestID = NewRequestID()
	}
	b.observer.StreamOpened()
	defer b.observer.StreamClosed()

	queue := make(chan chunk, b.queueSize)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		b.produce(context.WithoutCancel(ctx), req.Open, queue)
	}()

	r := &relay{ctx: ctx, bridge: b, emitter: req.Emitter, requestID: req.RequestID, live: req.Emitter != nil}
	r.emit(EventStart, StartPayload{RequestID: req.RequestID, StartInfo: req.Start})
	r.emit(EventThinking, TextPayload{RequestID: req.RequestID, Content: ThinkingText})

	out := r.loop(queue)
	<-finished
	return out
}

func (b *Bridge) produce(ctx context.Context, open func() (llm.Stream, error), queue chan<- chunk) {
	var failure error
	defer func() {
		if p := recover(); p != nil {
			failure = fmt.Errorf("stream producer panicked: %v", p)
		}
		queue <- chunk{end: true, err: failure}
	}()

	if err := b.slots.Acquire(ctx, 1); err != nil {
		failure = err
		return
	}
	defer b.slots.Release(1)

	if open == nil {
		failure = errors.New("no stream to relay")
		return
	}
	stream, err := open()
	if err != nil {
		failure = err
		return
	}
	defer stream.Close()

	for {
		piece, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			failure = err
			return
		}
		queue <- chunk{text: piece}
	}
}

type relay struct {
	ctx       context.Context
	bridge    *Bridge
	emitter   Emitter
	requestID string
	live      bool
}

func (r *relay) loop(queue <-chan chunk) Outcome {
	out := Outcome{RequestID: r.requestID}
	var text strings.Builder

	timer := time.NewTimer(r.bridge.heartbeat)
	defer timer.Stop()
	gone := r.ctx.Done()

	for {
		timer.Reset(r.bridge.heartbeat)
		select {
		case c := <-queue:
			if c.end {
				out.Text = text.String()
				out.Err = c.err
				out.Disconnected = !r.live
				if c.err != nil {
					r.bridge.logger.Warn("stream failed", "request_id", r.requestID, "error", c.err)
					r.emit(EventError, ErrorPayload{RequestID: r.requestID, Message: c.err.Error()})
				} else {
					r.emit(EventDone, TextPayload{RequestID: r.requestID, Content: out.Text})
				}
				return out
			}
			text.WriteString(c.text)
			r.emit(EventContent, TextPayload{RequestID: r.requestID, Content: c.text})
		case <-timer.C:
			if r.live {
				if err := r.emitter.Heartbeat(); err != nil {
					r.lose(err)
				}
			}
		case <-gone:
			gone = nil
			r.lose(r.ctx.Err())
		}
	}
}

func (r *relay) emit(name string, payload any) {
	if !r.live {
		return
	}
	if err := r.ctx.Err(); err != nil {
		r.lose(err)
		return
	}
	if err := r.emitter.Event(name, payload); err != nil {
		r.lose(err)
		return
	}
	r.bridge.observer.EventEmitted(name)
}

// lose stops emission; the queue is still drained by the loop.
func (r *relay) lose(cause error) {
	if !r.live {
		return
	}
	r.live = false
	r.bridge.observer.ConsumerGone()
	r.bridge.logger.Debug("consumer disconnected", "request_id", r.requestID, "cause", cause)
}

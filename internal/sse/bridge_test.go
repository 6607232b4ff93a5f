package sse

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsaffron/chatstream/internal/llm"
	"github.com/samsaffron/chatstream/internal/logger"
)

type recordedEvent struct {
	name    string
	payload any
}

type recorder struct {
	mu         sync.Mutex
	events     []recordedEvent
	heartbeats int
	seen       chan string
}

func newRecorder() *recorder {
	return &recorder{seen: make(chan string, 256)}
}

func (r *recorder) Event(name string, payload any) error {
	r.mu.Lock()
	r.events = append(r.events, recordedEvent{name: name, payload: payload})
	r.mu.Unlock()
	r.seen <- name
	return nil
}

func (r *recorder) Heartbeat() error {
	r.mu.Lock()
	r.heartbeats++
	r.mu.Unlock()
	r.seen <- "heartbeat"
	return nil
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.name
	}
	return out
}

func (r *recorder) last() recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) waitFor(t *testing.T, name string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-r.seen:
			if got == name {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", name)
		}
	}
}

// chanStream yields whatever the test sends until the channel is closed.
type chanStream struct {
	ch chan string
}

func newChanStream() *chanStream { return &chanStream{ch: make(chan string)} }

func (s *chanStream) Recv() (string, error) {
	piece, ok := <-s.ch
	if !ok {
		return "", io.EOF
	}
	return piece, nil
}

func (s *chanStream) Close() error { return nil }

// failingStream yields pieces and then fails with err.
type failingStream struct {
	pieces []string
	err    error
}

func (s *failingStream) Recv() (string, error) {
	if len(s.pieces) == 0 {
		return "", s.err
	}
	piece := s.pieces[0]
	s.pieces = s.pieces[1:]
	return piece, nil
}

func (s *failingStream) Close() error { return nil }

type panicStream struct{}

func (panicStream) Recv() (string, error) { panic("backend exploded") }
func (panicStream) Close() error          { return nil }

func testBridge(opts Options) *Bridge {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return NewBridge(opts)
}

func openStream(s llm.Stream) func() (llm.Stream, error) {
	return func() (llm.Stream, error) { return s, nil }
}

func TestRunEmitsOrderedEventsAndDone(t *testing.T) {
	rec := newRecorder()
	b := testBridge(Options{})

	out := b.Run(context.Background(), RunRequest{
		RequestID: "req-1",
		Start:     StartInfo{ChatID: 7, Backend: "gemini", Model: "m"},
		Open:      openStream(llm.NewSliceStream("Hel", "lo", " world")),
		Emitter:   rec,
	})

	require.NoError(t, out.Err)
	assert.False(t, out.Disconnected)
	assert.Equal(t, "Hello world", out.Text)
	assert.Equal(t, []string{EventStart, EventThinking, EventContent, EventContent, EventContent, EventDone}, rec.names())

	start := rec.events[0].payload.(StartPayload)
	assert.Equal(t, "req-1", start.RequestID)
	assert.Equal(t, int64(7), start.ChatID)
	assert.Equal(t, "gemini", start.Backend)

	assert.Equal(t, TextPayload{RequestID: "req-1", Content: ThinkingText}, rec.events[1].payload)
	assert.Equal(t, TextPayload{RequestID: "req-1", Content: "lo"}, rec.events[3].payload)
	assert.Equal(t, TextPayload{RequestID: "req-1", Content: "Hello world"}, rec.last().payload)
}

func TestRunGeneratesRequestID(t *testing.T) {
	rec := newRecorder()
	out := testBridge(Options{}).Run(context.Background(), RunRequest{
		Open:    openStream(llm.NewSliceStream("x")),
		Emitter: rec,
	})
	require.NotEmpty(t, out.RequestID)
	assert.Equal(t, out.RequestID, rec.events[0].payload.(StartPayload).RequestID)
}

func TestRunEmptyIncrementIsContent(t *testing.T) {
	rec := newRecorder()
	out := testBridge(Options{}).Run(context.Background(), RunRequest{
		RequestID: "r",
		Open:      openStream(llm.NewSliceStream("", "x")),
		Emitter:   rec,
	})
	assert.Equal(t, "x", out.Text)
	assert.Equal(t, []string{EventStart, EventThinking, EventContent, EventContent, EventDone}, rec.names())
	assert.Equal(t, TextPayload{RequestID: "r", Content: ""}, rec.events[2].payload)
}

func TestRunErrorAfterItems(t *testing.T) {
	rec := newRecorder()
	out := testBridge(Options{}).Run(context.Background(), RunRequest{
		RequestID: "r",
		Open:      openStream(&failingStream{pieces: []string{"a", "b"}, err: errors.New("boom")}),
		Emitter:   rec,
	})

	require.EqualError(t, out.Err, "boom")
	assert.Equal(t, "ab", out.Text)
	assert.Equal(t, []string{EventStart, EventThinking, EventContent, EventContent, EventError}, rec.names())
	assert.Equal(t, ErrorPayload{RequestID: "r", Message: "boom"}, rec.last().payload)
}

func TestRunFactoryError(t *testing.T) {
	rec := newRecorder()
	out := testBridge(Options{}).Run(context.Background(), RunRequest{
		RequestID: "r",
		Open:      func() (llm.Stream, error) { return nil, errors.New("cannot open") },
		Emitter:   rec,
	})

	require.Error(t, out.Err)
	assert.Equal(t, []string{EventStart, EventThinking, EventError}, rec.names())
	assert.Equal(t, ErrorPayload{RequestID: "r", Message: "cannot open"}, rec.last().payload)
}

func TestRunRecoversProducerPanic(t *testing.T) {
	rec := newRecorder()
	out := testBridge(Options{}).Run(context.Background(), RunRequest{
		Open:    openStream(panicStream{}),
		Emitter: rec,
	})

	require.Error(t, out.Err)
	assert.Contains(t, out.Err.Error(), "backend exploded")
	assert.Equal(t, []string{EventStart, EventThinking, EventError}, rec.names())
}

func TestRunEmitsHeartbeatsWhileIdle(t *testing.T) {
	rec := newRecorder()
	stream := newChanStream()
	b := testBridge(Options{Heartbeat: 10 * time.Millisecond})

	done := make(chan Outcome, 1)
	go func() {
		done <- b.Run(context.Background(), RunRequest{Open: openStream(stream), Emitter: rec})
	}()

	rec.waitFor(t, "heartbeat")
	rec.waitFor(t, "heartbeat")
	stream.ch <- "late"
	close(stream.ch)

	out := <-done
	assert.Equal(t, "late", out.Text)
	assert.Equal(t, []string{EventStart, EventThinking, EventContent, EventDone}, rec.names())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.GreaterOrEqual(t, rec.heartbeats, 2)
}

func TestRunDisconnectDrainsProducer(t *testing.T) {
	rec := newRecorder()
	stream := newChanStream()
	b := testBridge(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan Outcome, 1)
	go func() {
		done <- b.Run(ctx, RunRequest{Open: openStream(stream), Emitter: rec})
	}()

	stream.ch <- "a"
	rec.waitFor(t, EventContent)
	cancel()
	stream.ch <- "b"
	stream.ch <- "c"
	close(stream.ch)

	out := <-done
	assert.True(t, out.Disconnected)
	assert.NoError(t, out.Err)
	assert.Equal(t, "abc", out.Text)
	assert.Equal(t, []string{EventStart, EventThinking, EventContent}, rec.names())
}

type brokenEmitter struct{ calls atomic.Int32 }

func (e *brokenEmitter) Event(string, any) error {
	e.calls.Add(1)
	return errors.New("broken pipe")
}

func (e *brokenEmitter) Heartbeat() error { return errors.New("broken pipe") }

func TestRunStopsEmittingAfterWriteFailure(t *testing.T) {
	em := &brokenEmitter{}
	out := testBridge(Options{}).Run(context.Background(), RunRequest{
		Open:    openStream(llm.NewSliceStream("a", "b", "c")),
		Emitter: em,
	})

	assert.True(t, out.Disconnected)
	assert.Equal(t, "abc", out.Text)
	assert.Equal(t, int32(1), em.calls.Load())
}

func TestRunBoundsConcurrentProducers(t *testing.T) {
	b := testBridge(Options{MaxConcurrent: 1})
	first := newChanStream()
	var secondOpened atomic.Bool

	firstDone := make(chan Outcome, 1)
	go func() {
		firstDone <- b.Run(context.Background(), RunRequest{Open: openStream(first), Emitter: newRecorder()})
	}()
	first.ch <- "busy"

	secondDone := make(chan Outcome, 1)
	go func() {
		secondDone <- b.Run(context.Background(), RunRequest{
			Open: func() (llm.Stream, error) {
				secondOpened.Store(true)
				return llm.NewSliceStream("ok"), nil
			},
			Emitter: newRecorder(),
		})
	}()

	assert.Never(t, secondOpened.Load, 50*time.Millisecond, 5*time.Millisecond)
	close(first.ch)
	<-firstDone

	out := <-secondDone
	assert.True(t, secondOpened.Load())
	assert.Equal(t, "ok", out.Text)
}

type countingObserver struct {
	opened, closed, gone atomic.Int32
	mu                   sync.Mutex
	events               map[string]int
}

func (o *countingObserver) StreamOpened() { o.opened.Add(1) }
func (o *countingObserver) StreamClosed() { o.closed.Add(1) }
func (o *countingObserver) ConsumerGone() { o.gone.Add(1) }
func (o *countingObserver) EventEmitted(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.events == nil {
		o.events = map[string]int{}
	}
	o.events[name]++
}

func TestRunReportsToObserver(t *testing.T) {
	obs := &countingObserver{}
	testBridge(Options{Observer: obs}).Run(context.Background(), RunRequest{
		Open:    openStream(llm.NewSliceStream("a", "b")),
		Emitter: newRecorder(),
	})

	assert.Equal(t, int32(1), obs.opened.Load())
	assert.Equal(t, int32(1), obs.closed.Load())
	assert.Zero(t, obs.gone.Load())
	assert.Equal(t, map[string]int{EventStart: 1, EventThinking: 1, EventContent: 2, EventDone: 1}, obs.events)
}

// countingStream yields n numbered increments and counts Recv calls.
type countingStream struct {
	n     int
	recvs atomic.Int32
}

func (s *countingStream) Recv() (string, error) {
	i := int(s.recvs.Add(1))
	if i > s.n {
		return "", io.EOF
	}
	return strconv.Itoa(i) + " ", nil
}

func (s *countingStream) Close() error { return nil }

// gatedEmitter blocks content events until release is closed.
type gatedEmitter struct {
	release chan struct{}
	mu      sync.Mutex
	content []string
}

func (e *gatedEmitter) Event(name string, payload any) error {
	if name == EventContent {
		<-e.release
		e.mu.Lock()
		e.content = append(e.content, payload.(TextPayload).Content)
		e.mu.Unlock()
	}
	return nil
}

func (e *gatedEmitter) Heartbeat() error { return nil }

func TestRunQueueBackpressure(t *testing.T) {
	const queue, total = 5, 1000
	stream := &countingStream{n: total}
	em := &gatedEmitter{release: make(chan struct{})}
	b := testBridge(Options{QueueSize: queue})

	done := make(chan Outcome, 1)
	go func() {
		done <- b.Run(context.Background(), RunRequest{Open: openStream(stream), Emitter: em})
	}()

	// One item held by the blocked relay, a full queue, and one the
	// producer is waiting to enqueue.
	limit := int32(queue + 2)
	require.Eventually(t, func() bool { return stream.recvs.Load() == limit }, 2*time.Second, time.Millisecond)
	assert.Never(t, func() bool { return stream.recvs.Load() > limit }, 50*time.Millisecond, 5*time.Millisecond)

	close(em.release)
	out := <-done
	require.NoError(t, out.Err)

	em.mu.Lock()
	defer em.mu.Unlock()
	require.Len(t, em.content, total)
	var want strings.Builder
	for i := 1; i <= total; i++ {
		assert.Equal(t, strconv.Itoa(i)+" ", em.content[i-1])
		want.WriteString(strconv.Itoa(i) + " ")
	}
	assert.Equal(t, want.String(), out.Text)
}

package llm

import (
	"context"
	"fmt"
	"io"
)

// textStream adapts a push-style generator into a Stream.
type textStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	pieces <-chan string
}

// newTextStream runs fn in a goroutine and exposes everything it emits as a
// Stream. If fn returns an error, a single "[<label>-error] ..." increment is
// emitted before the stream ends, so partial output is preserved and the
// consumer still sees a clean EOF.
func newTextStream(ctx context.Context, label string, fn func(ctx context.Context, emit func(string) bool) error) Stream {
	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan string, 16)
	emit := func(text string) bool {
		if text == "" {
			return true
		}
		if streamCtx.Err() != nil {
			return false
		}
		select {
		case ch <- text:
			return true
		case <-streamCtx.Done():
			return false
		}
	}
	go func() {
		defer close(ch)
		if err := fn(streamCtx, emit); err != nil {
			emit(diagnostic(label, err))
		}
	}()
	return &textStream{ctx: streamCtx, cancel: cancel, pieces: ch}
}

func diagnostic(label string, err error) string {
	return fmt.Sprintf("[%s-error] %v", label, err)
}

func (s *textStream) Recv() (string, error) {
	// Drain buffered pieces first so a cancelled stream still hands back
	// what was already produced.
	select {
	case piece, ok := <-s.pieces:
		if !ok {
			return "", io.EOF
		}
		return piece, nil
	default:
	}

	select {
	case <-s.ctx.Done():
		return "", s.ctx.Err()
	case piece, ok := <-s.pieces:
		if !ok {
			return "", io.EOF
		}
		return piece, nil
	}
}

func (s *textStream) Close() error {
	s.cancel()
	return nil
}

// sliceStream replays fixed increments.
type sliceStream struct {
	pieces []string
	pos    int
}

// NewSliceStream returns a Stream that yields pieces in order.
func NewSliceStream(pieces ...string) Stream {
	return &sliceStream{pieces: pieces}
}

func (s *sliceStream) Recv() (string, error) {
	if s.pos >= len(s.pieces) {
		return "", io.EOF
	}
	piece := s.pieces[s.pos]
	s.pos++
	return piece, nil
}

func (s *sliceStream) Close() error { return nil }

// Collect drains a stream and returns the concatenated text.
func Collect(stream Stream) (string, error) {
	defer stream.Close()
	var out []byte
	for {
		piece, err := stream.Recv()
		if err == io.EOF {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, piece...)
	}
}

package session

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/rendis/leadtap/internal/engine/leads"
	"github.com/rendis/leadtap/internal/engine/stream"
	"github.com/rendis/leadtap/internal/model"
)

// State is the lifecycle of one extraction session.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ErrStreamTruncated is reported when the producer closes the stream
// without a terminal done event.
var ErrStreamTruncated = errors.New("stream closed before completion")

// StreamOpener opens the extraction event stream. The API client
// implements it; tests substitute canned bodies.
type StreamOpener interface {
	OpenScrape(ctx context.Context, params model.ExtractParams) (io.ReadCloser, error)
}

// Session orchestrates one extraction run: it opens the stream, drives
// the frame decoder, and routes each event through a single reducer into
// the Aggregator and, for the terminal payload, the Reconciler. One
// cooperative reader per session; the only suspension point is the chunk
// read. Cancel aborts by closing the underlying transport.
type Session struct {
	mu     sync.Mutex
	state  State
	err    error
	cancel context.CancelFunc

	agg *Aggregator
	rec *leads.Reconciler
	log *zap.Logger
}

func New(rec *leads.Reconciler, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		state: StateIdle,
		agg:   NewAggregator(),
		rec:   rec,
		log:   log,
	}
}

func (s *Session) Aggregator() *Aggregator     { return s.agg }
func (s *Session) Reconciler() *leads.Reconciler { return s.rec }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel aborts the session by closing the underlying transport. Row
// patches already in flight elsewhere are not cancelled.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Run blocks until the stream terminates. It validates locally before
// any request is sent, then reads chunks and reduces synchronously: all
// events completed by a chunk are applied before the next read.
func (s *Session) Run(ctx context.Context, opener StreamOpener, params model.ExtractParams) error {
	if msg := params.Validate(); msg != "" {
		err := errors.New(msg)
		s.agg.Errorf("parametri non validi: %s", msg)
		s.setState(StateFailed, err)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.state = StateStreaming
	s.err = nil
	s.mu.Unlock()

	body, err := opener.OpenScrape(ctx, params)
	if err != nil {
		s.agg.Errorf("ERRORE: %v", err)
		s.setState(StateFailed, err)
		return err
	}
	defer body.Close()

	dec := stream.NewDecoder(s.log)
	buf := make([]byte, 4096)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, ev := range dec.Feed(buf[:n]) {
				s.reduce(ev)
			}
		}
		if dec.Done() {
			s.setState(StateCompleted, nil)
			return nil
		}
		if readErr != nil {
			if readErr == io.EOF {
				for _, ev := range dec.Flush() {
					s.reduce(ev)
				}
				if dec.Done() {
					s.setState(StateCompleted, nil)
					return nil
				}
				s.agg.Errorf("ERRORE: %v", ErrStreamTruncated)
				s.setState(StateFailed, ErrStreamTruncated)
				return ErrStreamTruncated
			}
			if ctx.Err() != nil {
				s.agg.Logf("estrazione annullata")
				s.setState(StateFailed, ctx.Err())
				return ctx.Err()
			}
			s.agg.Errorf("connessione interrotta: %v", readErr)
			s.setState(StateFailed, readErr)
			return readErr
		}
	}
}

// reduce is the single entry point per event type. The done payload
// replaces the reconciler's collection wholesale; edits in flight
// against the previous collection are deliberately not merged.
func (s *Session) reduce(ev stream.Event) {
	s.agg.Apply(ev)
	if ev.Type == stream.EventDone && s.rec != nil {
		s.rec.ReplaceAll(ev.Data)
	}
}

func (s *Session) setState(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.err = err
	s.mu.Unlock()
}

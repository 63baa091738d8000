package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/leadtap/internal/engine/leads"
	"github.com/rendis/leadtap/internal/model"
)

func frame(json string) string {
	return "data: " + json + "\n\n"
}

func validParams() model.ExtractParams {
	return model.ExtractParams{
		City:     "Torino",
		Radius:   2000,
		GridStep: 500,
		Keywords: []string{"bar"},
		ListName: "clienti.xlsx",
	}
}

type fixedOpener struct {
	body string
	err  error
}

func (f fixedOpener) OpenScrape(context.Context, model.ExtractParams) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func TestSession_CompletesOnDone(t *testing.T) {
	body := frame(`{"type": "log", "message": "Griglia: 49 punti"}`) +
		frame(`{"type": "progress", "value": 50, "label": "Ricerca griglia", "subtype": "grid"}`) +
		frame(`{"type": "done", "data": [{"Place_ID": "p1", "Nome": "Bar Nuovo"}]}`)

	rec := leads.NewReconciler("clienti.xlsx", nil, nil)
	s := New(rec, nil)

	err := s.Run(context.Background(), fixedOpener{body: body}, validParams())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, s.State())
	assert.Nil(t, s.Err())

	prog := s.Aggregator().Progress()
	assert.Equal(t, 100, prog.Value)
	assert.Equal(t, "Estrazione completata", prog.Label)

	snap := rec.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "p1", snap[0].PlaceID)
}

func TestSession_DoneReplacesEarlierCollection(t *testing.T) {
	rec := leads.NewReconciler("clienti.xlsx", nil, nil)
	rec.ReplaceAll([]model.LeadRecord{{PlaceID: "p0", Nome: "Vecchio"}})
	s := New(rec, nil)

	body := frame(`{"type": "done", "data": [{"Place_ID": "p1", "Nome": "Nuovo"}]}`)
	require.NoError(t, s.Run(context.Background(), fixedOpener{body: body}, validParams()))

	snap := rec.Snapshot()
	require.Len(t, snap, 1)
	for _, r := range snap {
		assert.NotEqual(t, "p0", r.PlaceID)
	}
}

func TestSession_ValidationFailsBeforeOpening(t *testing.T) {
	s := New(nil, nil)
	params := validParams()
	params.ListName = ""

	err := s.Run(context.Background(), fixedOpener{err: errors.New("must not be reached")}, params)
	require.Error(t, err)
	assert.Equal(t, StateFailed, s.State())
	assert.NotContains(t, err.Error(), "must not be reached")

	log := s.Aggregator().Log()
	require.NotEmpty(t, log)
	assert.True(t, log[0].IsError)
}

func TestSession_OpenFailure(t *testing.T) {
	s := New(nil, nil)
	err := s.Run(context.Background(), fixedOpener{err: errors.New("connessione rifiutata")}, validParams())
	require.Error(t, err)
	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, err, s.Err())
}

func TestSession_TruncatedStreamFails(t *testing.T) {
	body := frame(`{"type": "log", "message": "avvio"}`) // no done event
	s := New(nil, nil)

	err := s.Run(context.Background(), fixedOpener{body: body}, validParams())
	require.ErrorIs(t, err, ErrStreamTruncated)
	assert.Equal(t, StateFailed, s.State())
	require.NotEmpty(t, s.Aggregator().Log())
}

func TestSession_TrailingFrameWithoutSeparator(t *testing.T) {
	// The terminal frame arrives unterminated; EOF flush must still parse it.
	body := frame(`{"type": "progress", "value": 80, "label": "Dettagli"}`) +
		`data: {"type": "done", "data": []}`

	s := New(leads.NewReconciler("clienti.xlsx", nil, nil), nil)
	err := s.Run(context.Background(), fixedOpener{body: body}, validParams())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, s.State())
}

type erroringReader struct {
	body string
	err  error
	read bool
}

func (e *erroringReader) Read(p []byte) (int, error) {
	if !e.read {
		e.read = true
		return copy(p, e.body), nil
	}
	return 0, e.err
}

func (e *erroringReader) Close() error { return nil }

type readerOpener struct{ rc io.ReadCloser }

func (r readerOpener) OpenScrape(context.Context, model.ExtractParams) (io.ReadCloser, error) {
	return r.rc, nil
}

func TestSession_TransportErrorMidStream(t *testing.T) {
	rc := &erroringReader{
		body: frame(`{"type": "log", "message": "avvio"}`),
		err:  errors.New("connessione interrotta dal peer"),
	}
	s := New(nil, nil)

	err := s.Run(context.Background(), readerOpener{rc: rc}, validParams())
	require.Error(t, err)
	assert.Equal(t, StateFailed, s.State())

	log := s.Aggregator().Log()
	require.Len(t, log, 2)
	assert.False(t, log[0].IsError)
	assert.True(t, log[1].IsError)
}

type blockingReader struct {
	ctx context.Context
}

func (b *blockingReader) Read([]byte) (int, error) {
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func (b *blockingReader) Close() error { return nil }

type blockingOpener struct{}

func (blockingOpener) OpenScrape(ctx context.Context, _ model.ExtractParams) (io.ReadCloser, error) {
	return &blockingReader{ctx: ctx}, nil
}

func TestSession_CancelAbortsStream(t *testing.T) {
	s := New(nil, nil)

	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), blockingOpener{}, validParams())
	}()

	require.Eventually(t, func() bool {
		return s.State() == StateStreaming
	}, time.Second, 5*time.Millisecond)

	s.Cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StateFailed, s.State())
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after cancel")
	}
}

func TestSession_ManyEventsInterleavedWithProgress(t *testing.T) {
	var sb strings.Builder
	for i := 1; i <= 10; i++ {
		sb.WriteString(frame(fmt.Sprintf(`{"type": "log", "message": "punto %d"}`, i)))
		sb.WriteString(frame(fmt.Sprintf(`{"type": "progress", "value": %d, "label": "Ricerca griglia"}`, i*10)))
	}
	sb.WriteString(frame(`{"type": "done", "data": []}`))

	s := New(nil, nil)
	require.NoError(t, s.Run(context.Background(), fixedOpener{body: sb.String()}, validParams()))

	assert.Len(t, s.Aggregator().Log(), 10)
	assert.Equal(t, 100, s.Aggregator().Progress().Value)
}

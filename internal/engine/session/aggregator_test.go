package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/leadtap/internal/engine/stream"
)

func TestAggregator_LogOrderPreserved(t *testing.T) {
	a := NewAggregator()
	a.Apply(stream.Event{Type: stream.EventLog, Message: "primo"})
	a.Apply(stream.Event{Type: stream.EventError, Message: "secondo"})
	a.Logf("terzo")

	log := a.Log()
	require.Len(t, log, 3)
	assert.Equal(t, "primo", log[0].Message)
	assert.True(t, log[1].IsError)
	assert.Equal(t, "terzo", log[2].Message)
}

func TestAggregator_ProgressLastWriteWins(t *testing.T) {
	a := NewAggregator()
	a.Apply(stream.Event{Type: stream.EventProgress, Value: 10, Label: "Ricerca griglia", Subtype: "grid"})
	a.Apply(stream.Event{Type: stream.EventProgress, Value: 60, Label: "Dettagli", Subtype: "details"})

	p := a.Progress()
	assert.Equal(t, 60, p.Value)
	assert.Equal(t, "Dettagli", p.Label)
	assert.Equal(t, "details", p.Subtype)
}

func TestAggregator_DonePinsProgress(t *testing.T) {
	a := NewAggregator()
	a.Apply(stream.Event{Type: stream.EventProgress, Value: 80, Label: "Dettagli", Subtype: "details"})
	a.Apply(stream.Event{Type: stream.EventDone})

	p := a.Progress()
	assert.Equal(t, 100, p.Value)
	assert.Equal(t, "Estrazione completata", p.Label)
	assert.Equal(t, "details", p.Subtype)
}

func TestAggregator_LinesAreTimestamped(t *testing.T) {
	a := NewAggregator()
	fixed := time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)
	a.now = func() time.Time { return fixed }

	a.Errorf("ERRORE: %s", "timeout")

	log := a.Log()
	require.Len(t, log, 1)
	assert.Equal(t, fixed, log[0].At)
	assert.Equal(t, "ERRORE: timeout", log[0].Message)
	assert.True(t, log[0].IsError)
}

func TestAggregator_LogReturnsCopy(t *testing.T) {
	a := NewAggregator()
	a.Logf("uno")
	snap := a.Log()
	snap[0].Message = "manomesso"
	assert.Equal(t, "uno", a.Log()[0].Message)
}

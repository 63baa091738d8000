package stream

import "github.com/rendis/leadtap/internal/model"

// EventType discriminates extraction stream events.
type EventType string

const (
	EventLog      EventType = "log"
	EventError    EventType = "error"
	EventProgress EventType = "progress"
	EventDone     EventType = "done"
)

// Event is one decoded extraction event. Which fields are meaningful
// depends on Type: log/error carry Message, progress carries
// Value/Label/Subtype, done carries Data and terminates the session.
type Event struct {
	Type    EventType          `json:"type"`
	Message string             `json:"message,omitempty"`
	Value   int                `json:"value,omitempty"`
	Label   string             `json:"label,omitempty"`
	Subtype string             `json:"subtype,omitempty"`
	Data    []model.LeadRecord `json:"data,omitempty"`
}

package stream

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// dataPrefix marks a payload line inside an event frame.
const dataPrefix = "data: "

// Frames are separated by a blank line. The producer may use bare LF or
// CRLF line endings; a partial separator at the end of a chunk stays in
// the buffer until the next chunk completes it.
var frameSep = regexp.MustCompile(`\r?\n\r?\n`)

// Decoder incrementally parses an extraction event stream from raw byte
// chunks arriving at arbitrary boundaries. One Decoder per session; it is
// not safe for concurrent use (the session has a single reader).
type Decoder struct {
	buf  string
	done bool
	log  *zap.Logger
}

func NewDecoder(log *zap.Logger) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{log: log}
}

// Feed appends a chunk to the pending buffer and returns the events
// completed by it, in order. The trailing fragment after the last frame
// separator is always held back: it may be an incomplete frame. Feed
// never blocks and returns nil after a done event has been observed.
func (d *Decoder) Feed(chunk []byte) []Event {
	if d.done {
		return nil
	}
	d.buf += string(chunk)

	parts := frameSep.Split(d.buf, -1)
	d.buf = parts[len(parts)-1]

	var events []Event
	for _, block := range parts[:len(parts)-1] {
		events = append(events, d.parseBlock(block)...)
		if d.done {
			break
		}
	}
	return events
}

// Flush parses whatever is left in the buffer as a final frame. Called
// when the chunk source ends without a trailing blank line.
func (d *Decoder) Flush() []Event {
	if d.done {
		return nil
	}
	block := d.buf
	d.buf = ""
	return d.parseBlock(block)
}

// Done reports whether a terminal done event has been decoded.
func (d *Decoder) Done() bool {
	return d.done
}

// parseBlock scans one frame for "data: " payload lines. Malformed JSON is
// logged and skipped; it never aborts the session. Blank frames are
// skipped silently.
func (d *Decoder) parseBlock(block string) []Event {
	if strings.TrimSpace(block) == "" {
		return nil
	}

	var events []Event
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := line[len(dataPrefix):]

		var ev Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			d.log.Debug("skipping malformed stream payload",
				zap.Error(err),
				zap.String("payload", payload))
			continue
		}
		events = append(events, ev)
		if ev.Type == EventDone {
			d.done = true
			break
		}
	}
	return events
}

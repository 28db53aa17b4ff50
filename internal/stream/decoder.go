// Package stream decodes the agent reply event stream into typed events.
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/agentstream/internal/domain"
)

const (
	// DefaultReadSize is the size of a single physical read from the source.
	DefaultReadSize = 4096

	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

var recordDelimiter = []byte("\n\n")

// EventType tags a decoded stream event.
type EventType int

const (
	// EventChunk carries one incremental piece of agent text.
	EventChunk EventType = iota + 1
	// EventDone marks successful termination of the stream.
	EventDone
	// EventError marks fatal termination; Err holds a *ProtocolError or *TransportError.
	EventError
)

// String returns a readable name for logs.
func (t EventType) String() string {
	switch t {
	case EventChunk:
		return "chunk"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one decoded stream event.
type Event struct {
	Type EventType
	Text string
	Err  error
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool {
	return e.Type != EventChunk
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithReadSize sets the size of each physical read.
func WithReadSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.readSize = n
		}
	}
}

// WithStrictEOF makes a dangling undelimited record at end-of-stream a
// ProtocolError instead of silently dropping it.
func WithStrictEOF(strict bool) Option {
	return func(d *Decoder) {
		d.strictEOF = strict
	}
}

// WithLogger sets the logger used for dropped records.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Decoder turns a byte source into a finite, non-restartable sequence of
// events. It is not safe for concurrent use.
type Decoder struct {
	src       io.Reader
	readBuf   []byte
	pending   []byte
	readSize  int
	strictEOF bool
	logger    *slog.Logger

	eof  bool
	done bool
	// preset is emitted before any read, used for rejected responses.
	preset *Event
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		src:      r,
		readSize: DefaultReadSize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewResponseDecoder creates a decoder over an HTTP response body. A non-2xx
// status yields a single error event and the body is never read. The caller
// still owns resp.Body and must close it.
func NewResponseDecoder(resp *http.Response, opts ...Option) *Decoder {
	d := NewDecoder(resp.Body, opts...)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		d.preset = &Event{Type: EventError, Err: &TransportError{StatusCode: resp.StatusCode}}
	}
	return d
}

// Next returns the next event. The boolean is false once the decoder has
// terminated, after which Next never reads from the source again.
func (d *Decoder) Next() (Event, bool) {
	if d.preset != nil {
		ev := *d.preset
		d.preset = nil
		d.done = true
		return ev, true
	}
	for !d.done {
		if record, ok := d.cutRecord(); ok {
			ev, ok := d.decodeRecord(record)
			if !ok {
				continue
			}
			if ev.Terminal() {
				d.done = true
			}
			return ev, true
		}
		if d.eof {
			return d.finish()
		}
		if ev, failed := d.fill(); failed {
			d.done = true
			return ev, true
		}
	}
	return Event{}, false
}

// Events ranges over the remaining events.
func (d *Decoder) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			ev, ok := d.Next()
			if !ok || !yield(ev) {
				return
			}
		}
	}
}

// Done reports whether the decoder has terminated.
func (d *Decoder) Done() bool {
	return d.done
}

// fill performs one physical read into the pending buffer.
func (d *Decoder) fill() (Event, bool) {
	if d.readBuf == nil {
		d.readBuf = make([]byte, d.readSize)
	}
	n, err := d.src.Read(d.readBuf)
	if n > 0 {
		d.pending = append(d.pending, d.readBuf[:n]...)
	}
	if errors.Is(err, io.EOF) {
		d.eof = true
		return Event{}, false
	}
	if err != nil {
		return Event{Type: EventError, Err: &TransportError{Err: err}}, true
	}
	return Event{}, false
}

// cutRecord removes the first complete record and its delimiter from the
// pending buffer.
func (d *Decoder) cutRecord() ([]byte, bool) {
	idx := bytes.Index(d.pending, recordDelimiter)
	if idx < 0 {
		return nil, false
	}
	record := bytes.Clone(d.pending[:idx])
	d.pending = d.pending[idx+len(recordDelimiter):]
	return record, true
}

func (d *Decoder) decodeRecord(record []byte) (Event, bool) {
	text := string(record)
	payload, ok := strings.CutPrefix(text, dataPrefix)
	if !ok {
		return Event{}, false
	}
	if payload == doneSentinel {
		return Event{Type: EventDone}, true
	}

	var reply domain.ChatReply
	if err := json.Unmarshal([]byte(payload), &reply); err != nil {
		return Event{Type: EventError, Err: &ProtocolError{Message: "malformed event payload", Err: err}}, true
	}
	switch {
	case reply.Reply != nil:
		return Event{Type: EventChunk, Text: *reply.Reply}, true
	case reply.Error != nil:
		return Event{Type: EventError, Err: &ProtocolError{Message: *reply.Error}}, true
	default:
		return Event{}, false
	}
}

// finish handles end-of-stream once every complete record is consumed.
func (d *Decoder) finish() (Event, bool) {
	d.done = true
	if len(d.pending) == 0 {
		return Event{}, false
	}
	remainder := len(d.pending)
	d.pending = nil
	if d.strictEOF {
		return Event{Type: EventError, Err: &ProtocolError{Err: ErrPartialRecord}}, true
	}
	d.logger.Debug("Dropping undelimited record at end of stream", "remainder_bytes", remainder)
	return Event{}, false
}

// Package logbuffer keeps the most recent log entries in memory and fans
// new ones out to live subscribers, backing the debug log view.
package logbuffer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// DefaultCapacity is the number of entries kept when New gets zero.
const DefaultCapacity = 100

// DefaultSubscriberBuffer is the channel size given to each subscriber.
const DefaultSubscriberBuffer = 64

// Entry is one captured log line.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// String renders e as "[LEVEL] 15:04:05 - message".
func (e Entry) String() string {
	level := strings.ToUpper(e.Level)
	if level == "" {
		level = "LOG"
	}

	return fmt.Sprintf("[%s] %s - %s", level, e.Time.Format(time.TimeOnly), e.Message)
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithClock sets the clock used to stamp entries without a time.
func WithClock(c clockwork.Clock) Option {
	return func(b *Buffer) { b.clock = c }
}

// WithSubscriberBuffer sets the channel size of new subscribers.
func WithSubscriberBuffer(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.subBuffer = n
		}
	}
}

// Buffer is a fixed-capacity ring of entries. It is safe for concurrent
// use and implements io.Writer for zerolog JSON output.
type Buffer struct {
	clock     clockwork.Clock
	subBuffer int

	mu      sync.Mutex
	ring    []Entry
	head    int
	size    int
	subs    map[uint64]chan Entry
	nextSub uint64
	dropped uint64
}

// New returns a Buffer holding up to capacity entries.
func New(capacity int, opts ...Option) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	b := &Buffer{
		clock:     clockwork.NewRealClock(),
		subBuffer: DefaultSubscriberBuffer,
		ring:      make([]Entry, capacity),
		subs:      make(map[uint64]chan Entry),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Append stores e, evicting the oldest entry when full, and delivers it
// to every subscriber that has room.
func (b *Buffer) Append(e Entry) {
	if e.Time.IsZero() {
		e.Time = b.clock.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.head + b.size) % len(b.ring)
	if b.size == len(b.ring) {
		b.head = (b.head + 1) % len(b.ring)
	} else {
		b.size++
	}
	b.ring[idx] = e

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped++
		}
	}
}

// Entries returns the buffered entries, oldest first.
func (b *Buffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.snapshot()
}

// snapshot copies the ring oldest first. b.mu must be held.
func (b *Buffer) snapshot() []Entry {
	out := make([]Entry, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.ring[(b.head+i)%len(b.ring)]
	}

	return out
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.size
}

// Capacity returns the maximum number of entries kept.
func (b *Buffer) Capacity() int {
	return len(b.ring)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dropped
}

// Clear discards all buffered entries. Subscribers stay attached.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.ring)
	b.head = 0
	b.size = 0
}

// Subscribe registers a listener for new entries. The returned cancel
// func unregisters it and closes the channel; it may be called twice.
func (b *Buffer) Subscribe() (<-chan Entry, func()) {
	_, ch, cancel := b.subscribe(false)
	return ch, cancel
}

// SubscribeWithSnapshot returns the buffered entries and a subscription
// taken atomically: every entry is in exactly one of the two.
func (b *Buffer) SubscribeWithSnapshot() ([]Entry, <-chan Entry, func()) {
	return b.subscribe(true)
}

func (b *Buffer) subscribe(withSnapshot bool) ([]Entry, <-chan Entry, func()) {
	ch := make(chan Entry, b.subBuffer)

	b.mu.Lock()
	var entries []Entry
	if withSnapshot {
		entries = b.snapshot()
	}
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}

	return entries, ch, cancel
}

// Subscribers returns the number of attached subscribers.
func (b *Buffer) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs)
}

// Write parses zerolog JSON lines and appends one entry per line. Lines
// that are not JSON objects are kept verbatim as the message.
func (b *Buffer) Write(p []byte) (int, error) {
	for _, line := range bytes.Split(p, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		b.Append(parseLine(line))
	}

	return len(p), nil
}

func parseLine(line []byte) Entry {
	var fields map[string]any
	if err := json.Unmarshal(line, &fields); err != nil {
		return Entry{Message: string(line)}
	}

	var e Entry

	if v, ok := fields[zerolog.LevelFieldName].(string); ok {
		e.Level = v
		delete(fields, zerolog.LevelFieldName)
	}

	if v, ok := fields[zerolog.MessageFieldName].(string); ok {
		e.Message = v
		delete(fields, zerolog.MessageFieldName)
	}

	if t, ok := parseTime(fields[zerolog.TimestampFieldName]); ok {
		e.Time = t
		delete(fields, zerolog.TimestampFieldName)
	}

	if len(fields) > 0 {
		e.Fields = fields
	}

	return e
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		sec := int64(t)
		return time.Unix(sec, int64((t-float64(sec))*float64(time.Second))), true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}

	return time.Time{}, false
}

package eventstream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// DefaultChannelCapacity is the bounded event channel size used when Options
// leaves ChannelCapacity unset.
const DefaultChannelCapacity = 256

// DefaultLineBufferMax is the maximum line length (bytes) the parser will
// accumulate before aborting with LineTooLong.
const DefaultLineBufferMax = 1 << 20

// Options configures a Parser's resource ceilings.
type Options struct {
	ChannelCapacity int
	LineBufferMax   int
}

func (o Options) withDefaults() Options {
	if o.ChannelCapacity <= 0 {
		o.ChannelCapacity = DefaultChannelCapacity
	}
	if o.LineBufferMax <= 0 {
		o.LineBufferMax = DefaultLineBufferMax
	}
	return o
}

type state int

const (
	stateIdle state = iota
	stateReadingEvent
	stateReadingData
	stateTerminated
)

// Parser decodes a raw byte stream into normalized events, accepting
// standard SSE, compact per-line JSON, prefixed inline JSON, and raw text
// framings in the same stream.
type Parser struct {
	opts Options

	state        state
	eventName    string
	dataLines    []string
	attribution  string // name of the most recent step.start
	sawWFEnd     bool
	offset       int64
}

// NewParser constructs a Parser with the given resource ceilings.
func NewParser(opts Options) *Parser {
	return &Parser{opts: opts.withDefaults()}
}

// Run starts decoding r in a background goroutine and returns a bounded
// channel of normalized events. The channel is closed once r reaches EOF,
// an unrecoverable error occurs, or ctx is cancelled. Callers drain the
// channel; the parser blocks on send when the consumer lags rather than
// dropping events.
func (p *Parser) Run(ctx context.Context, r io.Reader) <-chan Event {
	out := make(chan Event, p.opts.ChannelCapacity)
	go func() {
		defer close(out)
		p.decode(ctx, r, out)
	}()
	return out
}

func (p *Parser) send(ctx context.Context, out chan<- Event, e Event) bool {
	select {
	case out <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

func (p *Parser) decode(ctx context.Context, r io.Reader, out chan<- Event) {
	reader := bufio.NewReader(r)
	for {
		if ctx.Err() != nil {
			return
		}

		line, err := p.readLine(reader)
		if err != nil {
			if err == errLineTooLong {
				p.send(ctx, out, Event{Kind: KindError, Payload: map[string]any{"kind": ErrorKindLineTooLong}, RawOffset: p.offset})
				p.emitTerminal(ctx, out)
				return
			}
			if err == io.EOF {
				p.emitTerminal(ctx, out)
				return
			}
			p.send(ctx, out, Event{Kind: KindError, Payload: map[string]any{"kind": "read", "detail": err.Error()}, RawOffset: p.offset})
			p.emitTerminal(ctx, out)
			return
		}

		if !p.handleLine(ctx, out, line) {
			return
		}
	}
}

var errLineTooLong = fmt.Errorf("eventstream: line exceeds buffer limit")

// readLine reads one line (without its trailing newline), tracking the
// cumulative byte offset and enforcing the configured line length ceiling.
func (p *Parser) readLine(r *bufio.Reader) (string, error) {
	var buf []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if len(chunk) > 0 {
			buf = append(buf, chunk...)
			p.offset += int64(len(chunk))
		}
		if err != nil {
			if len(buf) > 0 {
				return string(buf), nil
			}
			return "", err
		}
		if len(buf) > p.opts.LineBufferMax {
			// drain the rest of the oversized line before reporting.
			for isPrefix {
				_, isPrefix, err = r.ReadLine()
				if err != nil {
					break
				}
			}
			return "", errLineTooLong
		}
		if !isPrefix {
			p.offset++ // account for the newline
			return string(buf), nil
		}
	}
}

func (p *Parser) handleLine(ctx context.Context, out chan<- Event, line string) bool {
	switch {
	case strings.HasPrefix(line, ":"):
		return p.send(ctx, out, Event{Kind: KindHeartbeat, Payload: nil, RawOffset: p.offset})

	case strings.HasPrefix(line, "event:"):
		p.eventName = strings.TrimPrefix(strings.TrimPrefix(line, "event:"), " ")
		p.state = stateReadingEvent
		return true

	case strings.HasPrefix(line, "data: ") || strings.HasPrefix(line, "data:"):
		data := strings.TrimPrefix(line, "data:")
		data = strings.TrimPrefix(data, " ")
		p.dataLines = append(p.dataLines, data)
		p.state = stateReadingData
		return true

	case line == "":
		if p.state == stateReadingData {
			return p.finalizeSSEEvent(ctx, out)
		}
		p.state = stateIdle
		return true

	default:
		return p.handleOtherLine(ctx, out, line)
	}
}

func (p *Parser) finalizeSSEEvent(ctx context.Context, out chan<- Event) bool {
	payloadText := strings.Join(p.dataLines, "\n")
	name := p.eventName
	p.eventName = ""
	p.dataLines = nil
	p.state = stateIdle

	var decoded map[string]any
	if payloadText != "" {
		if err := json.Unmarshal([]byte(payloadText), &decoded); err != nil {
			decoded = nil
		}
	}

	if name == "" && decoded != nil {
		if t, ok := decoded["type"].(string); ok {
			name = t
		}
	}

	return p.emitMapped(ctx, out, name, decoded, payloadText)
}

func (p *Parser) handleOtherLine(ctx context.Context, out chan<- Event, line string) bool {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var decoded map[string]any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			if t, ok := decoded["type"].(string); ok {
				if t == "text" || t == "chunk" {
					return p.emitStepLog(ctx, out, decoded)
				}
				return p.emitMapped(ctx, out, t, decoded, trimmed)
			}
		}
	}

	if !utf8.ValidString(line) {
		return p.emitInvalidUTF8Spans(ctx, out, line)
	}

	return p.emitStepLog(ctx, out, map[string]any{"text": line})
}

// emitInvalidUTF8Spans emits one decoding error per contiguous run of
// invalid bytes in line, skipping them; valid runes are dropped from this
// line's output since their position relative to the invalid span is no
// longer meaningful to a consumer.
func (p *Parser) emitInvalidUTF8Spans(ctx context.Context, out chan<- Event, line string) bool {
	inSpan := false
	for i := 0; i < len(line); {
		r, size := utf8.DecodeRuneInString(line[i:])
		if r == utf8.RuneError && size <= 1 {
			if !inSpan {
				if !p.send(ctx, out, Event{Kind: KindError, Payload: map[string]any{"kind": ErrorKindDecoding}, RawOffset: p.offset}) {
					return false
				}
				inSpan = true
			}
			i++
			continue
		}
		inSpan = false
		i += size
	}
	return true
}

func (p *Parser) emitStepLog(ctx context.Context, out chan<- Event, decoded map[string]any) bool {
	payload := map[string]any{}
	for k, v := range decoded {
		payload[k] = v
	}
	if p.attribution != "" {
		payload["step"] = p.attribution
	}
	return p.send(ctx, out, Event{Kind: KindStepLog, Payload: payload, RawOffset: p.offset})
}

var eventNameKind = map[string]Kind{
	"workflow_started":  KindWorkflowStart,
	"workflow_complete": KindWorkflowEnd,
	"step_started":      KindStepStart,
	"step_progress":     KindStepProgress,
	"step_complete":     KindStepEnd,
	"step_failed":       KindStepEnd,
}

func (p *Parser) emitMapped(ctx context.Context, out chan<- Event, name string, decoded map[string]any, rawText string) bool {
	kind, known := eventNameKind[name]
	if !known {
		if decoded != nil {
			return p.emitStepLog(ctx, out, decoded)
		}
		return p.emitStepLog(ctx, out, map[string]any{"text": rawText})
	}

	payload := map[string]any{}
	for k, v := range decoded {
		payload[k] = v
	}

	switch kind {
	case KindWorkflowEnd:
		p.sawWFEnd = true
	case KindStepStart:
		if n, ok := payload["name"].(string); ok {
			p.attribution = n
		}
	case KindStepEnd:
		if name == "step_failed" {
			payload["status"] = "failure"
		}
	}

	return p.send(ctx, out, Event{Kind: kind, Payload: payload, RawOffset: p.offset})
}

func (p *Parser) emitTerminal(ctx context.Context, out chan<- Event) {
	if p.state == stateTerminated {
		return
	}
	p.state = stateTerminated
	if p.sawWFEnd {
		return
	}
	p.send(ctx, out, Event{Kind: KindStreamBroken, Payload: map[string]any{"bytes_consumed": p.offset}, RawOffset: p.offset})
	p.send(ctx, out, Event{Kind: KindWorkflowEnd, Payload: map[string]any{"status": StatusFailure, "kind": ErrorKindStreamBroken}, RawOffset: p.offset})
	p.sawWFEnd = true
}

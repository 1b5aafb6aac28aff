package llm

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// sseChunk is the provider event payload carried on a "data:" line.
// Only the first choice's delta is consumed.
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Type     string `json:"type"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// partialCall accumulates one tool call across fragments. Arguments grow by
// concatenation only; id and name keep the first non-empty value seen.
type partialCall struct {
	id   string
	name string
	args strings.Builder
}

// Decoder reconstructs one model call's structured output from transport
// chunks. It is call-scoped: create one per request, Feed raw bytes as they
// arrive, then Close once the channel ends to get the assembled message.
//
// Chunk boundaries carry no meaning: lines, JSON events, and even the inline
// <think> tags may be split anywhere, so the decoder buffers undecoded bytes
// and carries the tag state across Feed calls.
type Decoder struct {
	handler StreamHandler

	buf       []byte
	think     thinkState
	content   strings.Builder
	reasoning strings.Builder
	calls     map[int]*partialCall
	done      bool
}

// NewDecoder creates a decoder forwarding events to handler. A nil handler
// assembles silently.
func NewDecoder(handler StreamHandler) *Decoder {
	if handler == nil {
		handler = HandlerFuncs{}
	}
	return &Decoder{
		handler: handler,
		calls:   make(map[int]*partialCall),
	}
}

// Feed consumes the next transport chunk. Incomplete trailing lines are
// buffered until the next call.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)

	for {
		nl := bytes.IndexByte(d.buf, '\n')
		if nl < 0 {
			return
		}
		line := string(d.buf[:nl])
		d.buf = d.buf[nl+1:]
		d.processLine(line)
	}
}

// processLine handles one transport line. Non-event lines (comments, blank
// keep-alives, event/id fields) are ignored.
func (d *Decoder) processLine(line string) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, "data:") {
		return
	}
	payload := strings.TrimSpace(line[len("data:"):])
	if payload == "" {
		return
	}
	if payload == "[DONE]" {
		d.done = true
		return
	}

	var chunk sseChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		// Malformed event payloads are dropped rather than aborting the
		// stream; the transport layer reports real failures.
		return
	}
	if len(chunk.Choices) == 0 {
		return
	}
	delta := chunk.Choices[0].Delta

	if delta.ReasoningContent != "" {
		d.reasoning.WriteString(delta.ReasoningContent)
		d.handler.Reasoning(delta.ReasoningContent)
	}

	if delta.Content != "" {
		var pieces []piece
		pieces, d.think = splitThink(d.think, delta.Content)
		d.route(pieces)
	}

	for _, tc := range delta.ToolCalls {
		pc := d.calls[tc.Index]
		if pc == nil {
			pc = &partialCall{}
			d.calls[tc.Index] = pc
		}
		if pc.id == "" && tc.ID != "" {
			pc.id = tc.ID
		}
		if pc.name == "" && tc.Function.Name != "" {
			pc.name = tc.Function.Name
		}
		pc.args.WriteString(tc.Function.Arguments)
	}
}

func (d *Decoder) route(pieces []piece) {
	for _, p := range pieces {
		switch p.kind {
		case pieceReasoning:
			d.reasoning.WriteString(p.text)
			d.handler.Reasoning(p.text)
		default:
			d.content.WriteString(p.text)
			d.handler.Token(p.text)
		}
	}
}

// Done reports whether the provider sent its end-of-stream sentinel.
func (d *Decoder) Done() bool {
	return d.done
}

// Close finalizes the stream: any held-back partial tag is flushed, and the
// assembled message is returned with tool calls in index order. Argument
// strings are returned as accumulated, unparsed.
func (d *Decoder) Close() *Assembled {
	var pieces []piece
	pieces, d.think = flushThink(d.think)
	d.route(pieces)

	indexes := make([]int, 0, len(d.calls))
	for i := range d.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var calls []ToolCall
	for _, i := range indexes {
		pc := d.calls[i]
		calls = append(calls, ToolCall{
			ID:        pc.id,
			Type:      "function",
			Name:      pc.name,
			Arguments: pc.args.String(),
		})
	}

	return &Assembled{
		Content:   d.content.String(),
		Reasoning: d.reasoning.String(),
		ToolCalls: calls,
	}
}

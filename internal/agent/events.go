// Package agent runs the tool-calling loop: classify, optionally plan,
// then repeatedly call the model and dispatch the capabilities it requests
// until it produces a final answer.
package agent

// EventType tags one stream event emitted during a turn.
type EventType string

const (
	EventToken     EventType = "token"
	EventReasoning EventType = "reasoning"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
	EventError     EventType = "error"
	EventDone      EventType = "done"
)

// Event is one unit of streamed turn output. Content carries the fragment,
// message or result text; Tool names the capability for tool events.
type Event struct {
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
	Tool    string    `json:"tool,omitempty"`
}

// EventSink receives turn events in order. The final event of a turn is
// always done, preceded by error if the turn failed.
type EventSink func(Event)

func (s EventSink) emit(e Event) {
	if s != nil {
		s(e)
	}
}

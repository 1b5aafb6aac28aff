package llm

import "strings"

// Some models emit their reasoning inline on the content field, wrapped in
// <think>...</think> tags, instead of (or in addition to) the dedicated
// reasoning delta field. The tags arrive as ordinary token fragments and can
// be split anywhere, including mid-tag, so routing must be a state machine
// carried across fragments rather than a per-fragment scan.

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// pieceKind routes a fragment piece to content or reasoning.
type pieceKind int

const (
	pieceContent pieceKind = iota
	pieceReasoning
)

// piece is a routed slice of an incoming content fragment.
type piece struct {
	kind pieceKind
	text string
}

// thinkState is the two-state tag machine. The zero value is content mode
// with nothing held back.
type thinkState struct {
	// reasoning is true while inside an unclosed <think> block.
	reasoning bool

	// carry holds a trailing run of text that is a proper prefix of the
	// tag expected next, so a tag split across fragments is still seen.
	carry string
}

// splitThink routes one content fragment given the current state. It is a
// pure function: all cross-fragment bookkeeping lives in the returned state.
func splitThink(st thinkState, fragment string) ([]piece, thinkState) {
	s := st.carry + fragment
	st.carry = ""

	var pieces []piece
	emit := func(text string) {
		if text == "" {
			return
		}
		kind := pieceContent
		if st.reasoning {
			kind = pieceReasoning
		}
		pieces = append(pieces, piece{kind: kind, text: text})
	}

	for {
		tag := thinkOpenTag
		if st.reasoning {
			tag = thinkCloseTag
		}

		idx := strings.Index(s, tag)
		if idx < 0 {
			held := tagPrefixSuffix(s, tag)
			emit(s[:len(s)-len(held)])
			st.carry = held
			return pieces, st
		}

		emit(s[:idx])
		st.reasoning = !st.reasoning
		s = s[idx+len(tag):]
	}
}

// flushThink releases any held-back partial tag at end of stream. A dangling
// prefix that never completed into a tag is ordinary text in whatever mode
// the stream ended in.
func flushThink(st thinkState) ([]piece, thinkState) {
	if st.carry == "" {
		return nil, st
	}
	kind := pieceContent
	if st.reasoning {
		kind = pieceReasoning
	}
	p := []piece{{kind: kind, text: st.carry}}
	st.carry = ""
	return p, st
}

// tagPrefixSuffix returns the longest suffix of s that is a proper prefix of
// tag, or "" if none.
func tagPrefixSuffix(s, tag string) string {
	max := len(tag) - 1
	if len(s) < max {
		max = len(s)
	}
	for l := max; l > 0; l-- {
		if s[len(s)-l:] == tag[:l] {
			return s[len(s)-l:]
		}
	}
	return ""
}

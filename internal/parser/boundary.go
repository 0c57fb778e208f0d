package parser

import "strings"

// BoundaryKind selects the rule that decides where a table ends
type BoundaryKind int

const (
	// EndOfStream consumes rows until the stream ends
	EndOfStream BoundaryKind = iota
	// RuleDelimited takes the rows between the first two separator
	// rule lines, e.g. "=====".
	RuleDelimited
	// BlankTerminated consumes rows until the first blank line
	BlankTerminated
	// SentinelTerminated consumes rows until a line containing Sentinel
	SentinelTerminated
)

func (k BoundaryKind) String() string {
	switch k {
	case RuleDelimited:
		return "rule-delimited"
	case BlankTerminated:
		return "blank-terminated"
	case SentinelTerminated:
		return "sentinel-terminated"
	default:
		return "end-of-stream"
	}
}

// Boundary determines where a table's rows begin and end within a
// line stream.
type Boundary struct {
	Kind BoundaryKind
	// Rule is the repeated character of a separator line; '=' if unset
	Rule byte
	// Sentinel ends the table in any state when a line contains it. For
	// SentinelTerminated tables a sentinel before any row means the
	// table is absent.
	Sentinel string
	// Skip discards this many leading lines before the boundary applies
	Skip int
	// Header, when set, also discards lines up to and including the
	// first one containing it.
	Header string
	// AllowEOF accepts the end of the stream as a terminator for
	// blank- and sentinel-terminated tables.
	AllowEOF bool
}

// UntilEOF returns a boundary that reads to the end of the stream
func UntilEOF() Boundary {
	return Boundary{Kind: EndOfStream}
}

// UntilBlank returns a boundary that ends at the first blank line
func UntilBlank() Boundary {
	return Boundary{Kind: BlankTerminated}
}

// UntilSentinel returns a boundary that ends at a line containing s
func UntilSentinel(s string) Boundary {
	return Boundary{Kind: SentinelTerminated, Sentinel: s}
}

// BetweenRules returns a boundary taking the rows between two rule
// lines made of rule, ending early wherever a line contains sentinel.
func BetweenRules(rule byte, sentinel string) Boundary {
	return Boundary{Kind: RuleDelimited, Rule: rule, Sentinel: sentinel}
}

// AfterSkipping returns a copy of b that first discards n lines
func (b Boundary) AfterSkipping(n int) Boundary {
	b.Skip = n
	return b
}

// AfterHeader returns a copy of b that first discards lines through the
// column header line containing s
func (b Boundary) AfterHeader(s string) Boundary {
	b.Header = s
	return b
}

// OrEOF returns a copy of b that also accepts the end of the stream
func (b Boundary) OrEOF() Boundary {
	b.AllowEOF = true
	return b
}

func (b Boundary) rule() byte {
	if b.Rule == 0 {
		return '='
	}
	return b.Rule
}

// action is what the extractor does with one line
type action int

const (
	actDiscard action = iota
	actParse
	actStop
	actPushBack
	actAbsent
)

type ruleState int

const (
	statePreamble ruleState = iota
	stateBody
	stateTrailer
)

type ruleEvent int

const (
	eventOther ruleEvent = iota
	eventBlank
	eventRule
)

type transition struct {
	next ruleState
	act  action
}

// ruleTransitions is total over every state and event, so there is no
// invalid state to reach.
var ruleTransitions = [...][3]transition{
	statePreamble: {
		eventOther: {statePreamble, actDiscard},
		eventBlank: {statePreamble, actDiscard},
		eventRule:  {stateBody, actDiscard},
	},
	stateBody: {
		eventOther: {stateBody, actParse},
		eventBlank: {stateBody, actDiscard},
		eventRule:  {stateTrailer, actDiscard},
	},
	stateTrailer: {
		eventOther: {stateTrailer, actDiscard},
		eventBlank: {stateTrailer, actDiscard},
		eventRule:  {stateTrailer, actPushBack},
	},
}

// cursor tracks one table's progress through its boundary
type cursor struct {
	b     Boundary
	state ruleState
	rows  int
}

func newCursor(b Boundary) *cursor {
	return &cursor{b: b}
}

func (c *cursor) step(line string) action {
	if c.b.Sentinel != "" && strings.Contains(line, c.b.Sentinel) {
		if c.b.Kind == SentinelTerminated && c.rows == 0 {
			return actAbsent
		}
		return actStop
	}

	blank := strings.TrimSpace(line) == ""

	switch c.b.Kind {
	case RuleDelimited:
		event := eventOther
		if blank {
			event = eventBlank
		} else if isRule(line, c.b.rule()) {
			event = eventRule
		}
		t := ruleTransitions[c.state][event]
		c.state = t.next
		return t.act
	case BlankTerminated:
		if blank {
			return actStop
		}
		return actParse
	default:
		if blank {
			return actDiscard
		}
		return actParse
	}
}

// complete reports whether the end of the stream is an acceptable end
// for the table in its current state
func (c *cursor) complete() bool {
	switch c.b.Kind {
	case RuleDelimited:
		return c.state == stateTrailer
	case EndOfStream:
		return true
	default:
		return c.b.AllowEOF
	}
}

func isRule(line string, rule byte) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed != "" && strings.Trim(trimmed, string(rule)) == ""
}

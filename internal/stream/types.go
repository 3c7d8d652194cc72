package stream

import "klinefeed/internal/memorystore"

// Sink receives the full ordered series after every change.
type Sink interface {
	Render(symbol string, bars []memorystore.Bar)
}

// Outcome is what handling one message did.
type Outcome int

const (
	OutcomeRejected  Outcome = iota // not a kline message
	OutcomeMalformed                // kline message that failed to decode
	OutcomeIgnored                  // older than the last bar
	OutcomeAppended
	OutcomeReplaced
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeAppended:
		return "appended"
	default:
		return "replaced"
	}
}

// Result reports the outcome and, for applied bars, the save error if any.
type Result struct {
	Outcome    Outcome
	PersistErr error
}

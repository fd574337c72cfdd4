package warranty

import "time"

// Kind names a reminder by its days-before-expiration offset.
type Kind string

const (
	KindJ30 Kind = "J30"
	KindJ7  Kind = "J7"
	KindJ1  Kind = "J1"
)

// Days returns the offset in days before the warranty end date.
func (k Kind) Days() int {
	switch k {
	case KindJ30:
		return 30
	case KindJ7:
		return 7
	case KindJ1:
		return 1
	}
	return 0
}

// Label is the human text stored on the alert record.
func (k Kind) Label() string {
	switch k {
	case KindJ30:
		return "warranty expires in 30 days"
	case KindJ7:
		return "warranty expires in 7 days"
	case KindJ1:
		return "warranty expires tomorrow"
	}
	return "warranty expiring"
}

// Kinds in firing order, earliest offset first.
var Kinds = []Kind{KindJ30, KindJ7, KindJ1}

// Candidate is one computed reminder instant.
type Candidate struct {
	Kind      Kind
	ExecuteAt time.Time
}

// ComputeSchedule returns the J30/J7/J1 instants for a warranty end date,
// using exact day subtraction. Unless includePast is set, instants not
// strictly after now are dropped so no job is ever enqueued with a
// non-positive delay. Deterministic: now is an explicit input.
func ComputeSchedule(endDate, now time.Time, includePast bool) []Candidate {
	out := make([]Candidate, 0, len(Kinds))
	for _, k := range Kinds {
		at := endDate.AddDate(0, 0, -k.Days())
		if !includePast && !at.After(now) {
			continue
		}
		out = append(out, Candidate{Kind: k, ExecuteAt: at})
	}
	return out
}

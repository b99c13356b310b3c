// Package validate judges each attempt's output against the original and
// drives the escalate-and-retry loop.
package validate

import (
	"fmt"
	"math"
)

// OutcomeKind is the verdict on one attempt.
type OutcomeKind string

const (
	Valid      OutcomeKind = "valid"
	Marginal   OutcomeKind = "marginal"
	NeedsRetry OutcomeKind = "needsRetry"
)

// Outcome is data, not an error: it decides between success and retry.
type Outcome struct {
	Kind       OutcomeKind
	SavedBytes int64
	Reason     string
}

// Success reports whether the attempt can be kept.
func (o Outcome) Success() bool { return o.Kind == Valid || o.Kind == Marginal }

// Policy holds the savings thresholds.
type Policy struct {
	// MinSavingsRatio is the fraction of the input an attempt must save.
	MinSavingsRatio float64
	// MarginalRatio is the fraction below which a success is marginal.
	MarginalRatio float64
}

// DefaultPolicy requires max(1 byte, 1%) and calls anything under 5% marginal.
func DefaultPolicy() Policy {
	return Policy{MinSavingsRatio: 0.01, MarginalRatio: 0.05}
}

// Floor is the smallest saving that counts for an input of size bytes.
func (p Policy) Floor(size int64) int64 {
	return max(1, int64(math.Ceil(float64(size)*p.MinSavingsRatio)))
}

// Validate compares sizes. attempt is 1-based and only used in the reason.
func (p Policy) Validate(original, output int64, attempt int) Outcome {
	if original <= 0 {
		return Outcome{Kind: NeedsRetry, Reason: "empty input"}
	}
	if output <= 0 {
		return Outcome{Kind: NeedsRetry, Reason: fmt.Sprintf("attempt %d produced no output", attempt)}
	}
	saved := original - output
	floor := p.Floor(original)
	if saved < floor {
		return Outcome{
			Kind:   NeedsRetry,
			Reason: fmt.Sprintf("attempt %d saved %d bytes, need %d", attempt, saved, floor),
		}
	}
	if float64(saved) < float64(original)*p.MarginalRatio {
		return Outcome{Kind: Marginal, SavedBytes: saved}
	}
	return Outcome{Kind: Valid, SavedBytes: saved}
}

// Validate applies the default policy.
func Validate(original, output int64, attempt int) Outcome {
	return DefaultPolicy().Validate(original, output, attempt)
}

// Package decision maps classifier probabilities onto discrete trading actions.
package decision

import "fmt"

// Action enumerates the discrete outputs of the policy.
type Action string

const (
	// Buy indicates the probability of an up move cleared the threshold.
	Buy Action = "BUY"
	// Sell indicates the probability of an up move fell below one minus the threshold.
	Sell Action = "SELL"
	// Hold covers the indifference band between the two.
	Hold Action = "HOLD"
)

// DefaultThreshold matches the value the classifier was tuned against.
const DefaultThreshold = 0.56

// Policy converts a probability into an action using a symmetric threshold band.
type Policy struct {
	threshold float64
}

// NewPolicy validates the threshold once at startup; values outside (0.5, 1)
// would make the BUY and SELL bands overlap or vanish.
func NewPolicy(threshold float64) (*Policy, error) {
	if threshold <= 0.5 || threshold >= 1 {
		return nil, fmt.Errorf("decision threshold %.4f outside (0.5, 1)", threshold)
	}
	return &Policy{threshold: threshold}, nil
}

// Threshold returns the configured band edge.
func (p *Policy) Threshold() float64 { return p.threshold }

// Decide maps a probability to an action. Confidence reported to clients is
// the raw probability, unmodified.
func (p *Policy) Decide(prob float64) Action {
	switch {
	case prob >= p.threshold:
		return Buy
	case prob <= 1-p.threshold:
		return Sell
	default:
		return Hold
	}
}

package dispatch

import (
	"fmt"

	"github.com/nerrad567/chimp-relay/internal/infrastructure/config"
)

// TerminationPolicy decides when a run has received enough messages.
// Satisfied is called with the running count after every delivery.
type TerminationPolicy interface {
	Satisfied(count int64) bool
	String() string
}

// CountThreshold completes the run once N messages have arrived.
type CountThreshold struct {
	N int64
}

// Satisfied reports whether count has reached the threshold.
func (p CountThreshold) Satisfied(count int64) bool {
	return count >= p.N
}

func (p CountThreshold) String() string {
	return fmt.Sprintf("count(%d)", p.N)
}

// Unbounded never completes; the run ends on a signal.
type Unbounded struct{}

// Satisfied always returns false.
func (Unbounded) Satisfied(int64) bool { return false }

func (Unbounded) String() string { return "unbounded" }

// PolicyFromConfig builds the policy named by the run configuration.
func PolicyFromConfig(cfg config.RunConfig) TerminationPolicy {
	if cfg.Termination == config.TerminationUnbounded {
		return Unbounded{}
	}
	return CountThreshold{N: cfg.MessageThreshold}
}

package scene

import "github.com/rotisserie/eris"

// Strategy selects how the orchestrator partitions the timeline into
// adjustment iterations.
type Strategy int

const (
	// StrategySequential adjusts one date at a time, anchoring each date on
	// previously adjusted ones.
	StrategySequential Strategy = iota
	// StrategyGlobal adjusts every selected date in a single call, with the
	// correspondence search restricted to pairs within a date lookahead.
	StrategyGlobal
	// StrategyBruteforce adjusts every selected date in a single call with
	// an unrestricted correspondence search.
	StrategyBruteforce
)

// ParseStrategy maps a configuration value to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "sequential":
		return StrategySequential, nil
	case "global":
		return StrategyGlobal, nil
	case "bruteforce":
		return StrategyBruteforce, nil
	default:
		return 0, eris.Errorf("scene: unknown strategy %q (want sequential, global or bruteforce)", name)
	}
}

func (s Strategy) String() string {
	switch s {
	case StrategySequential:
		return "sequential"
	case StrategyGlobal:
		return "global"
	case StrategyBruteforce:
		return "bruteforce"
	default:
		return "unknown"
	}
}

// Dir returns the per-strategy output directory name. Each strategy writes
// under its own subtree so runs with different strategies never collide.
func (s Strategy) Dir() string {
	return "ba_" + s.String()
}

// Package budget tracks agent and depth budgets for exploration graphs.
//
// Budgets are expected to be hit: exhaustion is reported as a typed outcome
// that the scheduler turns into a saturation transition, never an error that
// bubbles to callers.
package budget

import (
	"fmt"

	"github.com/rand/fractal/internal/graph"
)

// Profile fixes the hard ceilings for one intensity level.
type Profile struct {
	MaxAgents int `json:"max_agents" yaml:"max_agents"`
	MaxDepth  int `json:"max_depth" yaml:"max_depth"`
}

// Profiles maps each intensity to its ceilings. The numbers are policy
// constants: explicit, auditable, and tunable via the policy file.
type Profiles map[graph.Intensity]Profile

// DefaultProfiles returns the built-in intensity profiles.
func DefaultProfiles() Profiles {
	return Profiles{
		graph.IntensityPulse:   {MaxAgents: 3, MaxDepth: 2},
		graph.IntensityExplore: {MaxAgents: 8, MaxDepth: 4},
		graph.IntensityDeep:    {MaxAgents: 15, MaxDepth: 6},
	}
}

// For returns the profile for an intensity.
func (p Profiles) For(intensity graph.Intensity) (Profile, error) {
	prof, ok := p[intensity]
	if !ok {
		return Profile{}, fmt.Errorf("unknown intensity: %q", intensity)
	}
	if prof.MaxAgents <= 0 || prof.MaxDepth <= 0 {
		return Profile{}, fmt.Errorf("invalid profile for %q: %+v", intensity, prof)
	}
	return prof, nil
}

// Violation describes a budget ceiling that was hit.
type Violation struct {
	Metric  string `json:"metric"` // "agents" or "depth"
	Current int    `json:"current"`
	Limit   int    `json:"limit"`
	Message string `json:"message"`
}

func (v Violation) Error() string {
	return v.Message
}

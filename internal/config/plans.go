package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"speaker-split/internal/app/capability"
)

// Plans is the single source of truth for per-tier credit pool ceilings.
// Everything that needs a ceiling goes through Ceiling; the numbers are never
// repeated at call sites.
type Plans struct {
	Tiers map[string]map[capability.Capability]int `yaml:"tiers"`
}

// DefaultPlans returns the built-in entitlement table.
func DefaultPlans() *Plans {
	return &Plans{
		Tiers: map[string]map[capability.Capability]int{
			"free": {
				capability.Transcription: 5,
				capability.SpeakerSplit:  3,
				capability.Document:      2,
				capability.VoiceClone:    1,
			},
			"pro": {
				capability.Transcription: 50,
				capability.SpeakerSplit:  30,
				capability.Document:      20,
				capability.VoiceClone:    10,
			},
		},
	}
}

// LoadPlans reads a YAML plan table, falling back to defaults when path is
// empty. A file that names an unknown capability is rejected outright rather
// than silently granting a pool nothing can spend from.
func LoadPlans(path string) (*Plans, error) {
	if path == "" {
		return DefaultPlans(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}

	var plans Plans
	if err := yaml.Unmarshal(data, &plans); err != nil {
		return nil, fmt.Errorf("parse plans file %s: %w", path, err)
	}

	// Re-key onto canonical capability names so an aliased key ("split",
	// "speaker-split") funds the pool Ceiling actually reads.
	for tier, pools := range plans.Tiers {
		canonical := make(map[capability.Capability]int, len(pools))
		for c, ceiling := range pools {
			parsed, err := capability.Parse(string(c))
			if err != nil {
				return nil, fmt.Errorf("plans file %s: tier %q: %w", path, tier, err)
			}
			canonical[parsed] = ceiling
		}
		plans.Tiers[tier] = canonical
	}

	return &plans, nil
}

// Ceiling returns the pool ceiling for a tier and capability. Unknown tiers
// fall back to the free tier; unknown capabilities get zero.
func (p *Plans) Ceiling(tier string, c capability.Capability) int {
	pools, ok := p.Tiers[tier]
	if !ok {
		pools = p.Tiers["free"]
	}
	return pools[c]
}

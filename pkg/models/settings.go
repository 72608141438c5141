package models

// Settings are the user-tunable daemon settings edited by the external
// dashboard. The daemon reloads them when the settings file changes and
// broadcasts the new values to every connected client.
type Settings struct {
	// CostMultipliers overrides the spend multiplier per platform.
	// Platforms absent from the map use the block-kind multiplier.
	CostMultipliers map[Platform]float64 `json:"cost_multipliers,omitempty"`
	// JustificationMode reduces a session's multiplier from 2x to 1x
	// when an accepted free-text justification is on file.
	JustificationMode bool `json:"justification_mode"`
	// StrictFiltering requires an accepted intent before any restricted
	// platform session may start.
	StrictFiltering bool `json:"strict_filtering"`
}

// DefaultSettings returns the settings used before the dashboard has
// written a settings file.
func DefaultSettings() *Settings {
	return &Settings{
		CostMultipliers: map[Platform]float64{},
	}
}

// MultiplierFor returns the effective cost multiplier for spending on
// a platform during a block of the given kind.
func (s *Settings) MultiplierFor(p Platform, kind BlockKind) float64 {
	if m, ok := s.CostMultipliers[p]; ok {
		return m
	}
	return kind.CostMultiplier()
}

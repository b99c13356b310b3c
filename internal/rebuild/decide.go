// Package rebuild runs whole-document strategies: safe page copy, smart copy
// with raster escalation, ultra full rasterisation, and the per-page hybrid
// route. It also owns the job state machine.
package rebuild

import "github.com/local/docshrink/internal/model"

// Decision table thresholds.
const (
	HeavyUpdates      = 3
	LargeDocPages     = 100
	SmallFontDocPages = 20
)

// Signals are the document-level facts the decision table looks at.
type Signals struct {
	IncrementalUpdates int
	EmbeddedFonts      bool
	Pages              int
}

// Decide maps signals to a mode:
//
//	no incremental updates                    -> hybrid
//	updates >= 3, small doc with embedded fonts -> smart
//	updates >= 3                              -> ultra
//	updates >= 1 on a large doc               -> ultra
//	updates >= 1                              -> smart
func Decide(s Signals) model.RebuildMode {
	switch {
	case s.IncrementalUpdates <= 0:
		return model.ModeHybrid
	case s.IncrementalUpdates >= HeavyUpdates && s.EmbeddedFonts && s.Pages < SmallFontDocPages:
		return model.ModeSmart
	case s.IncrementalUpdates >= HeavyUpdates:
		return model.ModeUltra
	case s.Pages >= LargeDocPages:
		return model.ModeUltra
	default:
		return model.ModeSmart
	}
}

// Resolve honours a forced mode and falls back to the table for auto.
func Resolve(forced model.RebuildMode, s Signals) model.RebuildMode {
	if forced == "" || forced == model.ModeAuto {
		return Decide(s)
	}
	return forced
}

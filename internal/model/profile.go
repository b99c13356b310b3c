package model

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// RebuildMode selects the whole-document pipeline.
type RebuildMode string

const (
	ModeAuto   RebuildMode = "auto"
	ModeHybrid RebuildMode = "hybrid"
	ModeSafe   RebuildMode = "safe"
	ModeSmart  RebuildMode = "smart"
	ModeUltra  RebuildMode = "ultra"
)

// ParseRebuildMode accepts the lower-case mode names; empty means auto.
func ParseRebuildMode(s string) (RebuildMode, error) {
	switch m := RebuildMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeHybrid, ModeSafe, ModeSmart, ModeUltra:
		return m, nil
	}
	return "", fmt.Errorf("unknown rebuild mode %q", s)
}

// Aggressiveness levels.
const (
	AggressivenessLow = iota
	AggressivenessMedium
	AggressivenessHigh
	AggressivenessExtreme
)

// OptimizationProfile bundles the quality knobs for one attempt.
type OptimizationProfile struct {
	Name           string      `json:"name"`
	Quality        int         `json:"quality"`
	QualityFloor   int         `json:"quality_floor"`
	TargetDPI      float64     `json:"target_dpi"`
	MaxPixelDim    int         `json:"max_pixel_dim"`
	Aggressiveness int         `json:"aggressiveness"`
	PreserveVector bool        `json:"preserve_vector"`
	RebuildMode    RebuildMode `json:"rebuild_mode"`
	FullScan       bool        `json:"full_scan"`
	MRC            bool        `json:"mrc"`
	// BackgroundScale is applied to MRC background layers, in (0,1].
	BackgroundScale float64 `json:"background_scale"`
	Grayscale       bool    `json:"grayscale"`
}

var profiles = map[string]OptimizationProfile{
	"balanced": {
		Name: "balanced", Quality: 75, QualityFloor: 40, TargetDPI: 150, MaxPixelDim: 2400,
		Aggressiveness: AggressivenessMedium, PreserveVector: true, RebuildMode: ModeAuto,
		MRC: true, BackgroundScale: 0.5,
	},
	"strong": {
		Name: "strong", Quality: 60, QualityFloor: 30, TargetDPI: 120, MaxPixelDim: 2000,
		Aggressiveness: AggressivenessHigh, PreserveVector: true, RebuildMode: ModeAuto,
		MRC: true, BackgroundScale: 0.4,
	},
	"extreme": {
		Name: "extreme", Quality: 45, QualityFloor: 20, TargetDPI: 96, MaxPixelDim: 1600,
		Aggressiveness: AggressivenessExtreme, PreserveVector: false, RebuildMode: ModeAuto,
		MRC: true, BackgroundScale: 0.33,
	},
}

// DefaultProfile is used when no profile name is given.
const DefaultProfile = "balanced"

// Profile returns a named preset.
func Profile(name string) (OptimizationProfile, error) {
	if name == "" {
		name = DefaultProfile
	}
	p, ok := profiles[strings.ToLower(name)]
	if !ok {
		return OptimizationProfile{}, fmt.Errorf("unknown profile %q", name)
	}
	return p, nil
}

// ProfileNames lists the presets in a stable order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Normalize fills zero fields with safe values and bounds the rest.
func (p OptimizationProfile) Normalize() OptimizationProfile {
	if p.Quality <= 0 || p.Quality > 100 {
		p.Quality = 75
	}
	if p.QualityFloor <= 0 {
		p.QualityFloor = 20
	}
	if p.QualityFloor > p.Quality {
		p.QualityFloor = p.Quality
	}
	if p.TargetDPI <= 0 {
		p.TargetDPI = 150
	}
	if p.MaxPixelDim <= 0 {
		p.MaxPixelDim = 2400
	}
	if p.Aggressiveness < AggressivenessLow {
		p.Aggressiveness = AggressivenessLow
	}
	if p.Aggressiveness > AggressivenessExtreme {
		p.Aggressiveness = AggressivenessExtreme
	}
	if p.BackgroundScale <= 0 || p.BackgroundScale > 1 {
		p.BackgroundScale = 0.5
	}
	if p.RebuildMode == "" {
		p.RebuildMode = ModeAuto
	}
	return p
}

// Escalate returns a strictly-not-gentler profile for the next retry.
// Quality, DPI and pixel ceiling never increase; aggressiveness never decreases.
func (p OptimizationProfile) Escalate() OptimizationProfile {
	next := p
	next.Quality = int(math.Floor(float64(p.Quality) * 0.8))
	if next.Quality < p.QualityFloor {
		next.Quality = p.QualityFloor
	}
	if next.Quality > p.Quality {
		next.Quality = p.Quality
	}
	next.TargetDPI = math.Max(72, math.Floor(p.TargetDPI*0.8))
	if next.TargetDPI > p.TargetDPI {
		next.TargetDPI = p.TargetDPI
	}
	next.MaxPixelDim = int(float64(p.MaxPixelDim) * 0.8)
	if next.MaxPixelDim < 800 {
		next.MaxPixelDim = min(800, p.MaxPixelDim)
	}
	if p.Aggressiveness < AggressivenessExtreme {
		next.Aggressiveness = p.Aggressiveness + 1
	}
	next.BackgroundScale = math.Min(p.BackgroundScale, math.Max(0.25, p.BackgroundScale*0.8))
	return next
}

// EscalateMode moves a rebuild mode one step towards ultra.
func EscalateMode(m RebuildMode) RebuildMode {
	switch m {
	case ModeSafe:
		return ModeSmart
	case ModeSmart:
		return ModeUltra
	default:
		return m
	}
}

// CompressionConfig is the resolved, immutable configuration of one attempt.
type CompressionConfig struct {
	Profile OptimizationProfile `json:"profile"`
	Mode    RebuildMode         `json:"mode"`
	Attempt int                 `json:"attempt"`
}

// Escalate returns the configuration for the next attempt.
func (c CompressionConfig) Escalate() CompressionConfig {
	return CompressionConfig{
		Profile: c.Profile.Escalate(),
		Mode:    EscalateMode(c.Mode),
		Attempt: c.Attempt + 1,
	}
}

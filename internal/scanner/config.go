package scanner

import (
	"github.com/example/id-verify/internal/mrz"
	"github.com/example/id-verify/internal/quality"
)

// Config holds every tunable threshold of a scan session. All knobs have
// working defaults; zero values are replaced by them.
type Config struct {
	Quality   quality.Config
	Validator mrz.ValidatorConfig
	Layout    mrz.Layout

	// Consensus parameters for the back (MRZ) side.
	WindowSize        int
	StabilityFrames   int
	MinChecksumPasses int

	// Front side has no MRZ; it is captured after this many consecutive
	// frames pass the quality gate with at least FrontMinStability
	// frame-to-frame stability.
	FrontStableFrames int
	FrontMinStability float64

	// SideFrameBudget bounds the frames consumed per side before the
	// session times out.
	SideFrameBudget int

	// EventBuffer sizes the event channel.
	EventBuffer int
}

// DefaultConfig returns the documented defaults: a 5-frame consensus window,
// 3-frame stability, and the deliberately permissive 1-of-4 checksum
// threshold.
func DefaultConfig() Config {
	return Config{
		Quality:           quality.DefaultConfig(),
		Validator:         mrz.DefaultValidatorConfig(),
		Layout:            mrz.TD1,
		WindowSize:        5,
		StabilityFrames:   3,
		MinChecksumPasses: 1,
		FrontStableFrames: 3,
		FrontMinStability: 0.85,
		SideFrameBudget:   120,
		EventBuffer:       64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Quality == (quality.Config{}) {
		c.Quality = d.Quality
	}
	if c.Validator == (mrz.ValidatorConfig{}) {
		c.Validator = d.Validator
	}
	if c.Layout.LineLength == 0 {
		c.Layout = d.Layout
	}
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.StabilityFrames <= 0 {
		c.StabilityFrames = d.StabilityFrames
	}
	if c.MinChecksumPasses <= 0 {
		c.MinChecksumPasses = d.MinChecksumPasses
	}
	if c.FrontStableFrames <= 0 {
		c.FrontStableFrames = d.FrontStableFrames
	}
	if c.FrontMinStability <= 0 {
		c.FrontMinStability = d.FrontMinStability
	}
	if c.SideFrameBudget <= 0 {
		c.SideFrameBudget = d.SideFrameBudget
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}

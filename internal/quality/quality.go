// Package quality scores cropped document frames on glare, sharpness, and
// aspect-ratio conformance. Every scorer is pure and independent; the capture
// state machine combines them through a minimum-acceptable-score gate.
package quality

// Config holds the quality heuristic thresholds.
type Config struct {
	// Healthy mean-luminance band. Above GlareHigh the score decays
	// linearly toward zero at saturation, below GlareLow toward zero at
	// black.
	GlareLow  float64
	GlareHigh float64

	// Laplacian-variance value at which the sharpness score reaches 0.5.
	SharpnessHalf float64

	// ID-1 card geometry. The score is 1.0 at the canonical ratio,
	// decays linearly to AspectFloor at the band edges, and is exactly
	// zero outside the band.
	AspectCanonical float64
	AspectMin       float64
	AspectMax       float64
	AspectFloor     float64

	// MinAcceptable is the capture gate applied to the weakest of the
	// three scores.
	MinAcceptable float64
}

// DefaultConfig returns the documented thresholds: luminance band 60-200,
// aspect band 1.50-1.65 around the ID-1 ratio 1.586.
func DefaultConfig() Config {
	return Config{
		GlareLow:        60,
		GlareHigh:       200,
		SharpnessHalf:   150,
		AspectCanonical: 1.586,
		AspectMin:       1.50,
		AspectMax:       1.65,
		AspectFloor:     0.4,
		MinAcceptable:   0.5,
	}
}

// Score holds the independent per-frame quality scores, each in [0, 1].
type Score struct {
	Glare     float64 `json:"glare"`
	Sharpness float64 `json:"sharpness"`
	Aspect    float64 `json:"aspect"`
}

// Min returns the weakest of the three scores.
func (s Score) Min() float64 {
	min := s.Glare
	if s.Sharpness < min {
		min = s.Sharpness
	}
	if s.Aspect < min {
		min = s.Aspect
	}
	return min
}

// Passes reports whether the frame clears the capture gate.
func (s Score) Passes(gate float64) bool {
	return s.Min() >= gate
}

// Evaluate scores one cropped frame from its 8-bit luminance plane.
func Evaluate(luma []byte, width, height int, cfg Config) Score {
	return Score{
		Glare:     GlareScore(MeanLuminance(luma), cfg),
		Sharpness: SharpnessScore(ContrastVariance(luma, width, height), cfg),
		Aspect:    AspectScore(width, height, cfg),
	}
}

// MeanLuminance returns the average luma value of the plane.
func MeanLuminance(luma []byte) float64 {
	if len(luma) == 0 {
		return 0
	}
	sum := 0
	for _, v := range luma {
		sum += int(v)
	}
	return float64(sum) / float64(len(luma))
}

// ContrastVariance computes the variance of a 4-neighbour Laplacian over the
// luminance plane. Low variance means a flat, blurry frame.
func ContrastVariance(luma []byte, width, height int) float64 {
	if width < 3 || height < 3 || len(luma) < width*height {
		return 0
	}

	n := 0
	sum := 0.0
	sumSq := 0.0
	for y := 1; y < height-1; y++ {
		row := y * width
		for x := 1; x < width-1; x++ {
			i := row + x
			lap := 4*int(luma[i]) - int(luma[i-1]) - int(luma[i+1]) - int(luma[i-width]) - int(luma[i+width])
			f := float64(lap)
			sum += f
			sumSq += f * f
			n++
		}
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}

// GlareScore maps mean luminance to [0, 1].
func GlareScore(mean float64, cfg Config) float64 {
	switch {
	case mean >= cfg.GlareLow && mean <= cfg.GlareHigh:
		return 1.0
	case mean > cfg.GlareHigh:
		if mean >= 255 {
			return 0
		}
		return (255 - mean) / (255 - cfg.GlareHigh)
	default:
		if cfg.GlareLow <= 0 {
			return 0
		}
		return mean / cfg.GlareLow
	}
}

// SharpnessScore maps contrast variance through a monotonic normalization
// to [0, 1).
func SharpnessScore(variance float64, cfg Config) float64 {
	if variance <= 0 {
		return 0
	}
	return variance / (variance + cfg.SharpnessHalf)
}

// AspectScore compares the detected region's width/height ratio against the
// canonical ID-1 card ratio.
func AspectScore(width, height int, cfg Config) float64 {
	if height <= 0 {
		return 0
	}
	ratio := float64(width) / float64(height)
	if ratio < cfg.AspectMin || ratio > cfg.AspectMax {
		return 0
	}
	span := 1.0 - cfg.AspectFloor
	if ratio <= cfg.AspectCanonical {
		if cfg.AspectCanonical == cfg.AspectMin {
			return 1.0
		}
		return cfg.AspectFloor + span*(ratio-cfg.AspectMin)/(cfg.AspectCanonical-cfg.AspectMin)
	}
	if cfg.AspectMax == cfg.AspectCanonical {
		return 1.0
	}
	return cfg.AspectFloor + span*(cfg.AspectMax-ratio)/(cfg.AspectMax-cfg.AspectCanonical)
}

// Stability compares two consecutive luminance planes and returns 1 for
// identical frames falling toward 0 as mean absolute difference grows.
func Stability(current, previous []byte) float64 {
	if len(current) == 0 || len(current) != len(previous) {
		return 0
	}
	sum := 0
	for i := range current {
		d := int(current[i]) - int(previous[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return 1.0 - float64(sum)/float64(len(current))/255.0
}

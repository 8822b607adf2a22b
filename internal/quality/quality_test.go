package quality

import (
	"math"
	"testing"
)

func flatFrame(width, height int, value byte) []byte {
	luma := make([]byte, width*height)
	for i := range luma {
		luma[i] = value
	}
	return luma
}

func checkerFrame(width, height int) []byte {
	luma := make([]byte, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x+y)%2 == 0 {
				luma[y*width+x] = 255
			}
		}
	}
	return luma
}

func TestGlareScoreBands(t *testing.T) {
	cfg := DefaultConfig()

	if got := GlareScore(120, cfg); got != 1.0 {
		t.Errorf("healthy band score = %v, want 1.0", got)
	}
	if got := GlareScore(255, cfg); got != 0 {
		t.Errorf("saturated score = %v, want 0", got)
	}
	if got := GlareScore(0, cfg); got != 0 {
		t.Errorf("black score = %v, want 0", got)
	}

	// Linear decay on both sides of the band.
	mid := GlareScore((cfg.GlareHigh+255)/2, cfg)
	if math.Abs(mid-0.5) > 1e-9 {
		t.Errorf("midpoint above band = %v, want 0.5", mid)
	}
	low := GlareScore(cfg.GlareLow/2, cfg)
	if math.Abs(low-0.5) > 1e-9 {
		t.Errorf("midpoint below band = %v, want 0.5", low)
	}
}

func TestSharpnessScoreMonotonic(t *testing.T) {
	cfg := DefaultConfig()

	flat := SharpnessScore(ContrastVariance(flatFrame(40, 25, 128), 40, 25), cfg)
	if flat != 0 {
		t.Errorf("flat frame sharpness = %v, want 0", flat)
	}

	sharp := SharpnessScore(ContrastVariance(checkerFrame(40, 25), 40, 25), cfg)
	if sharp < 0.9 {
		t.Errorf("checkerboard sharpness = %v, want >= 0.9", sharp)
	}
	if sharp >= 1.0 {
		t.Errorf("sharpness must stay below 1.0, got %v", sharp)
	}

	half := SharpnessScore(cfg.SharpnessHalf, cfg)
	if math.Abs(half-0.5) > 1e-9 {
		t.Errorf("score at half-point variance = %v, want 0.5", half)
	}
}

func TestAspectScore(t *testing.T) {
	cfg := DefaultConfig()

	// 856x540 is the canonical ID-1 raster (ratio ~1.5852).
	if got := AspectScore(856, 540, cfg); got < 0.99 {
		t.Errorf("canonical ratio score = %v, want ~1.0", got)
	}
	if got := AspectScore(1500, 540, cfg); got != 0 {
		t.Errorf("out-of-band ratio score = %v, want 0", got)
	}
	if got := AspectScore(149, 100, cfg); got != 0 {
		t.Errorf("1.49:1 is below the band, got %v", got)
	}

	for _, dims := range [][2]int{{150, 100}, {165, 100}} {
		edge := AspectScore(dims[0], dims[1], cfg)
		if math.Abs(edge-cfg.AspectFloor) > 0.01 {
			t.Errorf("band edge score for %dx%d = %v, want ~%v", dims[0], dims[1], edge, cfg.AspectFloor)
		}
	}
}

func TestEvaluateGatesFrame(t *testing.T) {
	cfg := DefaultConfig()

	score := Evaluate(checkerFrame(159, 100), 159, 100, cfg)
	if !score.Passes(cfg.MinAcceptable) {
		t.Fatalf("sharp, well-lit, well-framed image must pass the gate: %+v", score)
	}

	dark := Evaluate(flatFrame(159, 100, 5), 159, 100, cfg)
	if dark.Passes(cfg.MinAcceptable) {
		t.Fatalf("dark flat frame must fail the gate: %+v", dark)
	}
}

func TestStability(t *testing.T) {
	a := flatFrame(10, 10, 100)
	b := flatFrame(10, 10, 100)
	if got := Stability(a, b); got != 1.0 {
		t.Errorf("identical frames stability = %v, want 1.0", got)
	}

	c := flatFrame(10, 10, 200)
	moved := Stability(a, c)
	if moved >= 1.0 || moved <= 0 {
		t.Errorf("shifted frame stability = %v, want between 0 and 1", moved)
	}

	if got := Stability(a, flatFrame(5, 5, 100)); got != 0 {
		t.Errorf("mismatched planes stability = %v, want 0", got)
	}
}

package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("http addr = %q", cfg.HTTPAddr)
	}
	if cfg.MinChecksumPasses != 1 {
		t.Errorf("min checksum passes = %d, want 1", cfg.MinChecksumPasses)
	}
	engine := cfg.EngineConfig()
	if engine.Layout.Name != "TD1" {
		t.Errorf("layout = %q, want TD1", engine.Layout.Name)
	}
}

func TestLoadRejectsInvalidThreshold(t *testing.T) {
	t.Setenv("MIN_CHECKSUM_PASSES", "9")
	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for out-of-range threshold")
	}
}

func TestEngineConfigAppliesOverrides(t *testing.T) {
	t.Setenv("MRZ_LAYOUT", "TD3")
	t.Setenv("CONSENSUS_WINDOW_SIZE", "7")
	t.Setenv("CONSENSUS_STABILITY_FRAMES", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	engine := cfg.EngineConfig()
	if engine.Layout.Name != "TD3" {
		t.Errorf("layout = %q, want TD3", engine.Layout.Name)
	}
	if engine.WindowSize != 7 || engine.StabilityFrames != 4 {
		t.Errorf("window = %d/%d, want 7/4", engine.WindowSize, engine.StabilityFrames)
	}
}

package model

import "testing"

func TestEscalateIsMonotonic(t *testing.T) {
	for _, name := range ProfileNames() {
		p, err := Profile(name)
		if err != nil {
			t.Fatal(err)
		}
		cfg := CompressionConfig{Profile: p.Normalize(), Mode: ModeSafe}
		for i := 0; i < 6; i++ {
			next := cfg.Escalate()
			if next.Profile.Quality > cfg.Profile.Quality {
				t.Fatalf("%s step %d: quality rose %d -> %d", name, i, cfg.Profile.Quality, next.Profile.Quality)
			}
			if next.Profile.TargetDPI > cfg.Profile.TargetDPI {
				t.Fatalf("%s step %d: dpi rose", name, i)
			}
			if next.Profile.MaxPixelDim > cfg.Profile.MaxPixelDim {
				t.Fatalf("%s step %d: pixel ceiling rose", name, i)
			}
			if next.Profile.Aggressiveness < cfg.Profile.Aggressiveness {
				t.Fatalf("%s step %d: aggressiveness dropped", name, i)
			}
			if next.Profile.Quality < cfg.Profile.QualityFloor {
				t.Fatalf("%s step %d: quality %d under floor %d", name, i, next.Profile.Quality, cfg.Profile.QualityFloor)
			}
			if next.Attempt != cfg.Attempt+1 {
				t.Fatalf("attempt not incremented")
			}
			cfg = next
		}
		if cfg.Mode != ModeUltra {
			t.Errorf("%s: mode after escalation = %s, want ultra", name, cfg.Mode)
		}
	}
}

func TestParseRebuildMode(t *testing.T) {
	tests := []struct {
		in      string
		want    RebuildMode
		wantErr bool
	}{
		{"", ModeAuto, false},
		{"Ultra", ModeUltra, false},
		{" safe ", ModeSafe, false},
		{"turbo", "", true},
	}
	for _, tt := range tests {
		got, err := ParseRebuildMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseRebuildMode(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseRebuildMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeBounds(t *testing.T) {
	p := OptimizationProfile{Quality: 500, QualityFloor: 90, Aggressiveness: 9}.Normalize()
	if p.Quality != 75 || p.QualityFloor != 75 {
		t.Errorf("quality = %d floor = %d", p.Quality, p.QualityFloor)
	}
	if p.Aggressiveness != AggressivenessExtreme {
		t.Errorf("aggressiveness = %d", p.Aggressiveness)
	}
	if p.RebuildMode != ModeAuto {
		t.Errorf("mode = %s", p.RebuildMode)
	}
}

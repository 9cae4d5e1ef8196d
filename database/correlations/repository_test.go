package correlations

import "testing"

func TestCanonicalPair(t *testing.T) {
	tests := []struct {
		name  string
		a, b  string
		wantA string
		wantB string
	}{
		{
			name:  "already ordered",
			a:     "bounce_fear_low_oversold",
			b:     "momentum_greed_high_overbought",
			wantA: "bounce_fear_low_oversold",
			wantB: "momentum_greed_high_overbought",
		},
		{
			name:  "reversed input is flipped",
			a:     "momentum_greed_high_overbought",
			b:     "bounce_fear_low_oversold",
			wantA: "bounce_fear_low_oversold",
			wantB: "momentum_greed_high_overbought",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotA, gotB := CanonicalPair(tt.a, tt.b)
			if gotA != tt.wantA || gotB != tt.wantB {
				t.Errorf("CanonicalPair(%q, %q) = (%q, %q), want (%q, %q)",
					tt.a, tt.b, gotA, gotB, tt.wantA, tt.wantB)
			}
		})
	}
}

func TestCanonicalPairSymmetry(t *testing.T) {
	a, b := "p1", "p2"
	a1, b1 := CanonicalPair(a, b)
	a2, b2 := CanonicalPair(b, a)
	if a1 != a2 || b1 != b2 {
		t.Errorf("mirrored inputs produced different canonical pairs: (%s,%s) vs (%s,%s)", a1, b1, a2, b2)
	}
}

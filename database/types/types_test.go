package types

import "testing"

func TestPatternKeyID(t *testing.T) {
	key := PatternKey{
		Strategy: StrategyMomentum,
		Regime:   RegimeGreed,
		Volume:   VolumeHigh,
		Setup:    SetupOverbought,
	}

	if got := key.ID(); got != "momentum_greed_high_overbought" {
		t.Errorf("ID() = %q, want momentum_greed_high_overbought", got)
	}
}

func TestPatternKeyValidate(t *testing.T) {
	valid := PatternKey{
		Strategy: StrategyMeanReversion,
		Regime:   RegimeExtremeFear,
		Volume:   VolumeLow,
		Setup:    SetupOversold,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid key rejected: %v", err)
	}

	tests := []struct {
		name string
		key  PatternKey
	}{
		{"bad strategy", PatternKey{Strategy: "scalping", Regime: RegimeFear, Volume: VolumeLow, Setup: SetupNeutral}},
		{"bad regime", PatternKey{Strategy: StrategyMomentum, Regime: "sideways", Volume: VolumeLow, Setup: SetupNeutral}},
		{"bad volume", PatternKey{Strategy: StrategyMomentum, Regime: RegimeFear, Volume: "huge", Setup: SetupNeutral}},
		{"bad setup", PatternKey{Strategy: StrategyMomentum, Regime: RegimeFear, Volume: VolumeLow, Setup: "macd_cross"}},
		{"empty", PatternKey{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.key.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestParsePatternIDRoundTrip(t *testing.T) {
	// Exercise every combination so underscored component values like
	// "extreme_fear" and "mean_reversion" decode unambiguously.
	for strategy := range strategyTypes {
		for regime := range regimeClasses {
			for volume := range volumeProfiles {
				for setup := range technicalSetups {
					key := PatternKey{Strategy: strategy, Regime: regime, Volume: volume, Setup: setup}
					got, err := ParsePatternID(key.ID())
					if err != nil {
						t.Fatalf("ParsePatternID(%q) failed: %v", key.ID(), err)
					}
					if got != key {
						t.Fatalf("ParsePatternID(%q) = %+v, want %+v", key.ID(), got, key)
					}
				}
			}
		}
	}
}

func TestParsePatternIDRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"momentum",
		"momentum_greed_high",
		"momentum_greed_high_overbought_extra",
		"scalping_greed_high_overbought",
		"momentum_sideways_high_overbought",
	}

	for _, id := range tests {
		if _, err := ParsePatternID(id); err == nil {
			t.Errorf("ParsePatternID(%q) succeeded, want error", id)
		}
	}
}

func TestConfidenceLevelRank(t *testing.T) {
	if !(ConfidenceLow.Rank() < ConfidenceMedium.Rank() && ConfidenceMedium.Rank() < ConfidenceHigh.Rank()) {
		t.Error("confidence ranks are not strictly ordered")
	}
}

func TestParseExitReason(t *testing.T) {
	if _, err := ParseExitReason("target"); err != nil {
		t.Errorf("ParseExitReason(target) failed: %v", err)
	}
	if _, err := ParseExitReason("margin_call"); err == nil {
		t.Error("ParseExitReason(margin_call) succeeded, want error")
	}
}

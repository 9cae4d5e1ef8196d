// Package types defines the closed categorical vocabularies used across the
// pattern ledger. Every enumerated field stored in the database is validated
// against these sets at construction time rather than being carried as a
// free-form string.
package types

import (
	"fmt"
	"strings"
)

// StrategyType identifies the trade strategy family of a pattern.
type StrategyType string

const (
	StrategyMeanReversion StrategyType = "mean_reversion"
	StrategyMomentum      StrategyType = "momentum"
	StrategyBreakout      StrategyType = "breakout"
	StrategyBounce        StrategyType = "bounce"
)

// MarketRegimeClass is the fear/greed market condition bucket a pattern is
// conditioned on.
type MarketRegimeClass string

const (
	RegimeExtremeFear  MarketRegimeClass = "extreme_fear"
	RegimeFear         MarketRegimeClass = "fear"
	RegimeNeutral      MarketRegimeClass = "neutral"
	RegimeGreed        MarketRegimeClass = "greed"
	RegimeExtremeGreed MarketRegimeClass = "extreme_greed"
)

// VolumeProfile buckets the entry volume ratio.
type VolumeProfile string

const (
	VolumeLow       VolumeProfile = "low"
	VolumeNormal    VolumeProfile = "normal"
	VolumeHigh      VolumeProfile = "high"
	VolumeExplosive VolumeProfile = "explosive"
)

// TechnicalSetup buckets the entry RSI reading.
type TechnicalSetup string

const (
	SetupOversold   TechnicalSetup = "oversold"
	SetupNeutral    TechnicalSetup = "neutral"
	SetupOverbought TechnicalSetup = "overbought"
)

// ConfidenceLevel is the discrete reliability tier of a pattern's statistics.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// Rank orders confidence levels so tiers can be compared. Unknown values rank
// below low.
func (c ConfidenceLevel) Rank() int {
	switch c {
	case ConfidenceLow:
		return 1
	case ConfidenceMedium:
		return 2
	case ConfidenceHigh:
		return 3
	default:
		return 0
	}
}

// ExitReason explains why a position was closed.
type ExitReason string

const (
	ExitTarget       ExitReason = "target"
	ExitStopLoss     ExitReason = "stop_loss"
	ExitTimeLimit    ExitReason = "time_limit"
	ExitRegimeChange ExitReason = "regime_change"
)

// RelationshipType is the qualitative bucket of a correlation coefficient.
type RelationshipType string

const (
	RelStronglyPositive RelationshipType = "strongly_positive"
	RelPositive         RelationshipType = "positive"
	RelNeutral          RelationshipType = "neutral"
	RelNegative         RelationshipType = "negative"
	RelStronglyNegative RelationshipType = "strongly_negative"
)

var (
	strategyTypes = map[StrategyType]bool{
		StrategyMeanReversion: true,
		StrategyMomentum:      true,
		StrategyBreakout:      true,
		StrategyBounce:        true,
	}
	regimeClasses = map[MarketRegimeClass]bool{
		RegimeExtremeFear:  true,
		RegimeFear:         true,
		RegimeNeutral:      true,
		RegimeGreed:        true,
		RegimeExtremeGreed: true,
	}
	volumeProfiles = map[VolumeProfile]bool{
		VolumeLow:       true,
		VolumeNormal:    true,
		VolumeHigh:      true,
		VolumeExplosive: true,
	}
	technicalSetups = map[TechnicalSetup]bool{
		SetupOversold:   true,
		SetupNeutral:    true,
		SetupOverbought: true,
	}
	exitReasons = map[ExitReason]bool{
		ExitTarget:       true,
		ExitStopLoss:     true,
		ExitTimeLimit:    true,
		ExitRegimeChange: true,
	}
)

// Valid reports whether the value belongs to the closed set.
func (s StrategyType) Valid() bool      { return strategyTypes[s] }
func (r MarketRegimeClass) Valid() bool { return regimeClasses[r] }
func (v VolumeProfile) Valid() bool     { return volumeProfiles[v] }
func (t TechnicalSetup) Valid() bool    { return technicalSetups[t] }
func (e ExitReason) Valid() bool        { return exitReasons[e] }

// ParseRegime maps a free-form regime label ("Extreme Fear", "greed", ...)
// onto the closed regime set.
func ParseRegime(label string) (MarketRegimeClass, error) {
	normalized := MarketRegimeClass(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(label)), " ", "_"))
	if !normalized.Valid() {
		return "", fmt.Errorf("unknown market regime %q", label)
	}
	return normalized, nil
}

// ParseExitReason validates an exit reason string.
func ParseExitReason(s string) (ExitReason, error) {
	reason := ExitReason(strings.ToLower(strings.TrimSpace(s)))
	if !reason.Valid() {
		return "", fmt.Errorf("unknown exit reason %q", s)
	}
	return reason, nil
}

// PatternKey is the composite identity of a trade pattern. The four
// components fully determine the pattern; the encoded ID is stable across
// restarts.
type PatternKey struct {
	Strategy StrategyType
	Regime   MarketRegimeClass
	Volume   VolumeProfile
	Setup    TechnicalSetup
}

// Validate checks every component against its closed set.
func (k PatternKey) Validate() error {
	if !k.Strategy.Valid() {
		return fmt.Errorf("invalid strategy type %q", k.Strategy)
	}
	if !k.Regime.Valid() {
		return fmt.Errorf("invalid market regime %q", k.Regime)
	}
	if !k.Volume.Valid() {
		return fmt.Errorf("invalid volume profile %q", k.Volume)
	}
	if !k.Setup.Valid() {
		return fmt.Errorf("invalid technical setup %q", k.Setup)
	}
	return nil
}

// ID encodes the key tuple as the canonical pattern identifier, e.g.
// "momentum_greed_high_overbought".
func (k PatternKey) ID() string {
	return fmt.Sprintf("%s_%s_%s_%s", k.Strategy, k.Regime, k.Volume, k.Setup)
}

// ParsePatternID decodes a pattern identifier back into its key tuple.
// Components may themselves contain underscores ("extreme_fear"), so the id
// is decoded by matching each closed set in order; no value in a set is a
// prefix of another, which keeps the decoding unambiguous.
func ParsePatternID(id string) (PatternKey, error) {
	rest := id

	strategy, rest, ok := matchComponent(rest, strategyValues())
	if !ok {
		return PatternKey{}, fmt.Errorf("malformed pattern id %q: unknown strategy", id)
	}
	regime, rest, ok := matchComponent(rest, regimeValues())
	if !ok {
		return PatternKey{}, fmt.Errorf("malformed pattern id %q: unknown regime", id)
	}
	volume, rest, ok := matchComponent(rest, volumeValues())
	if !ok {
		return PatternKey{}, fmt.Errorf("malformed pattern id %q: unknown volume profile", id)
	}

	setup := TechnicalSetup(rest)
	if !setup.Valid() {
		return PatternKey{}, fmt.Errorf("malformed pattern id %q: unknown technical setup", id)
	}

	return PatternKey{
		Strategy: StrategyType(strategy),
		Regime:   MarketRegimeClass(regime),
		Volume:   VolumeProfile(volume),
		Setup:    setup,
	}, nil
}

// matchComponent consumes one "<value>_" component off the front of rest.
func matchComponent(rest string, values []string) (string, string, bool) {
	for _, v := range values {
		if strings.HasPrefix(rest, v+"_") {
			return v, rest[len(v)+1:], true
		}
	}
	return "", rest, false
}

func strategyValues() []string {
	return []string{
		string(StrategyMeanReversion),
		string(StrategyMomentum),
		string(StrategyBreakout),
		string(StrategyBounce),
	}
}

func regimeValues() []string {
	return []string{
		string(RegimeExtremeFear),
		string(RegimeFear),
		string(RegimeNeutral),
		string(RegimeGreed),
		string(RegimeExtremeGreed),
	}
}

func volumeValues() []string {
	return []string{
		string(VolumeLow),
		string(VolumeNormal),
		string(VolumeHigh),
		string(VolumeExplosive),
	}
}

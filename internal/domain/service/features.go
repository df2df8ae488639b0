package service

// FeatureSet selects the per-timestep feature vector fed to the model.
type FeatureSet string

const (
	FeaturesPrice           FeatureSet = "price"
	FeaturesPriceIndicators FeatureSet = "price_indicators"
)

// IsValidFeatureSet returns true if fs is supported.
func IsValidFeatureSet(fs FeatureSet) bool {
	switch fs {
	case FeaturesPrice, FeaturesPriceIndicators:
		return true
	default:
		return false
	}
}

// NormalizeFeatureSet converts a raw string to a valid feature set (or price).
func NormalizeFeatureSet(s string) FeatureSet {
	fs := FeatureSet(s)
	if IsValidFeatureSet(fs) {
		return fs
	}
	return FeaturesPrice
}

// Width returns the number of features per timestep.
func (fs FeatureSet) Width() int {
	if fs == FeaturesPriceIndicators {
		return 4
	}
	return 1
}

// SplitStrategy selects how validation pairs are held out.
type SplitStrategy string

const (
	SplitTail   SplitStrategy = "tail"
	SplitRandom SplitStrategy = "random"
)

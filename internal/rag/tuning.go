package rag

// Tuning holds the empirically chosen constants of the pipeline.
// Zero fields are replaced by the corresponding DefaultTuning value.
type Tuning struct {
	MaxContextChars       int
	ConfidenceFloor       float64
	MinSimilarity         float64
	OverviewMinSimilarity float64
	KeywordBoost          float64
	KeywordBoostCap       float64
	MaxTokens             int
	Temperature           float32
}

// DefaultTuning returns the default constants.
func DefaultTuning() Tuning {
	return Tuning{
		MaxContextChars:       12000,
		ConfidenceFloor:       0.3,
		MinSimilarity:         0.4,
		OverviewMinSimilarity: 0.25,
		KeywordBoost:          0.08,
		KeywordBoostCap:       0.3,
		MaxTokens:             2048,
		Temperature:           0.2,
	}
}

func (t Tuning) withDefaults() Tuning {
	d := DefaultTuning()
	if t.MaxContextChars <= 0 {
		t.MaxContextChars = d.MaxContextChars
	}
	if t.ConfidenceFloor <= 0 {
		t.ConfidenceFloor = d.ConfidenceFloor
	}
	if t.MinSimilarity <= 0 {
		t.MinSimilarity = d.MinSimilarity
	}
	if t.OverviewMinSimilarity <= 0 {
		t.OverviewMinSimilarity = d.OverviewMinSimilarity
	}
	if t.KeywordBoost <= 0 {
		t.KeywordBoost = d.KeywordBoost
	}
	if t.KeywordBoostCap <= 0 {
		t.KeywordBoostCap = d.KeywordBoostCap
	}
	if t.MaxTokens <= 0 {
		t.MaxTokens = d.MaxTokens
	}
	if t.Temperature <= 0 {
		t.Temperature = d.Temperature
	}
	return t
}

// similarityThreshold is the minimum best similarity below which the answer is a fallback.
func (t Tuning) similarityThreshold(intent Intent) float64 {
	if intent == IntentDocumentOverview {
		return t.OverviewMinSimilarity
	}
	return t.MinSimilarity
}

package services

import (
	"math"
	"strings"
)

const (
	perspectivePenalty    = 0.1
	maxPerspectivePenalty = 0.3
	minAdjustedConfidence = 0.1
)

// AdjustConfidence discounts a model-reported confidence by the number of
// missing perspectives and scales it by bias label. The result is always
// within [0.1, 1] and depends only on its inputs.
func AdjustConfidence(bias string, raw float64, missing []string) float64 {
	adjusted := raw
	if math.IsNaN(adjusted) {
		adjusted = 0.5
	}

	if n := len(missing); n > 0 {
		penalty := math.Min(maxPerspectivePenalty, float64(n)*perspectivePenalty)
		adjusted = math.Max(minAdjustedConfidence, adjusted-penalty)
	}

	switch strings.ToLower(strings.TrimSpace(bias)) {
	case "left-leaning", "right-leaning":
		adjusted = math.Min(1, adjusted*1.2)
	case "center":
		adjusted *= 0.9
	case "neutral":
		adjusted *= 0.8
	}

	return math.Max(minAdjustedConfidence, math.Min(1, adjusted))
}

package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdjustConfidenceExamples(t *testing.T) {
	tests := []struct {
		name    string
		bias    string
		raw     float64
		missing []string
		want    float64
	}{
		{"left with two gaps", "Left-Leaning", 0.82, []string{"Economic impact", "Opposition statement"}, 0.744},
		{"center lower case", "center", 0.5, nil, 0.45},
		{"neutral capped penalty", "neutral", 0.9, []string{"a", "b", "c", "d"}, 0.48},
		{"right saturates", "Right-Leaning", 0.95, nil, 1},
		{"unknown label untouched", "Mixed", 0.6, nil, 0.6},
		{"floor after penalty", "Center", 0.05, []string{"a"}, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AdjustConfidence(tt.bias, tt.raw, tt.missing), 1e-9)
		})
	}
}

func TestAdjustConfidenceRange(t *testing.T) {
	biases := []string{"Left-Leaning", "Center", "Right-Leaning", "Neutral", "", "other"}
	raws := []float64{-5, 0, 0.1, 0.33, 0.5, 0.99, 1, 7, math.Inf(1), math.Inf(-1), math.NaN()}
	gaps := [][]string{nil, {"a"}, {"a", "b", "c", "d", "e"}}

	for _, b := range biases {
		for _, r := range raws {
			for _, g := range gaps {
				got := AdjustConfidence(b, r, g)
				assert.GreaterOrEqual(t, got, 0.1, "bias=%q raw=%v gaps=%d", b, r, len(g))
				assert.LessOrEqual(t, got, 1.0, "bias=%q raw=%v gaps=%d", b, r, len(g))
				assert.Equal(t, got, AdjustConfidence(b, r, g))
			}
		}
	}
}

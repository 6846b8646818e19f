package models

import "strings"

// Bias is the political leaning label produced by the analyzer.
type Bias string

const (
	BiasLeft    Bias = "Left-Leaning"
	BiasCenter  Bias = "Center"
	BiasRight   Bias = "Right-Leaning"
	BiasNeutral Bias = "Neutral"
)

const UnknownPublisher = "Unknown Publisher"

// ParseBias matches s against the four labels, ignoring case and
// surrounding whitespace. ok is false for anything else.
func ParseBias(s string) (Bias, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left-leaning":
		return BiasLeft, true
	case "center":
		return BiasCenter, true
	case "right-leaning":
		return BiasRight, true
	case "neutral":
		return BiasNeutral, true
	}
	return "", false
}

// Valid reports whether b is exactly one of the enumerated labels.
func (b Bias) Valid() bool {
	switch b {
	case BiasLeft, BiasCenter, BiasRight, BiasNeutral:
		return true
	}
	return false
}

type AnalysisRequest struct {
	Content string `json:"content"`
	Title   string `json:"title,omitempty"`
	Source  string `json:"source,omitempty"`
	URL     string `json:"url,omitempty"`
}

type BiasAnalysisResult struct {
	Bias                Bias     `json:"bias"`
	Confidence          float64  `json:"confidence"`
	Owner               string   `json:"owner"`
	MissingPerspectives []string `json:"missingPerspectives"`
	Reasoning           string   `json:"reasoning,omitempty"`

	// Fallback is set when the result did not come from the model.
	Fallback bool `json:"-"`
}

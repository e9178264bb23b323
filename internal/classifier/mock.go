package classifier

import (
	"math/rand"
)

// MockSource marks results produced without an oracle
const MockSource = "mock"

// mockScores draws a value in [0.1, 0.9) per label and normalizes them so
// they sum to one
func mockScores(labels []string) map[string]float64 {
	scores := make(map[string]float64, len(labels))
	var total float64
	for _, label := range labels {
		v := 0.1 + rand.Float64()*0.8
		scores[label] += v
		total += v
	}
	for label := range scores {
		scores[label] /= total
	}
	return scores
}

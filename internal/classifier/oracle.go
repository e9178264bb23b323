package classifier

import (
	"context"
)

// Oracle is the external image classifier. It receives a normalized RGB
// image and returns a confidence per label.
type Oracle interface {
	Name() string
	Classify(ctx context.Context, img *NormalizedImage) (map[string]float64, error)
}

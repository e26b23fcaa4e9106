// Package embedding turns article text into fixed-length vectors.
package embedding

import "context"

// Provider generates an embedding for text.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

package client

import (
	"context"
)

// VisionClient sends a prompt with an image to a vision model and returns the raw reply
type VisionClient interface {
	Query(ctx context.Context, model, prompt, imgB64 string) (string, error)
}

package ai

import "context"

// Provider is an AI backend able to answer an extraction prompt, optionally
// with an attached invoice image (data URL, base64).
type Provider interface {
	// Name identifies the provider in logs and fallback reporting.
	Name() string

	// ExtractData sends the prompt (and image when non-empty) and returns
	// the raw model response text.
	ExtractData(ctx context.Context, prompt string, imageBase64 string) (string, error)
}

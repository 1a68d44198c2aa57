package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider talks to Google Gemini. The genai client is built lazily on
// the first call and reused for the provider's lifetime.
type GeminiProvider struct {
	apiKey string
	model  string

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GeminiProvider{apiKey: apiKey, model: model}
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) conn(ctx context.Context) (*genai.Client, error) {
	p.once.Do(func() {
		p.client, p.initErr = genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	})
	if p.initErr != nil {
		return nil, fmt.Errorf("creating gemini client: %w", p.initErr)
	}
	return p.client, nil
}

// ExtractData sends the prompt and optional image to Gemini and concatenates
// the text parts of the first candidate.
func (p *GeminiProvider) ExtractData(ctx context.Context, prompt string, imageBase64 string) (string, error) {
	client, err := p.conn(ctx)
	if err != nil {
		return "", err
	}

	model := client.GenerativeModel(p.model)

	parts := []genai.Part{genai.Text(prompt)}
	if imageBase64 != "" {
		format, data, err := decodeDataURL(imageBase64)
		if err != nil {
			return "", err
		}
		parts = append([]genai.Part{genai.ImageData(format, data)}, parts...)
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no candidates")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

// decodeDataURL splits a "data:image/xxx;base64,..." URL into the genai
// format suffix and the raw bytes.
func decodeDataURL(dataURL string) (string, []byte, error) {
	format := "jpeg"
	payload := dataURL
	if strings.HasPrefix(dataURL, "data:") {
		header, rest, ok := strings.Cut(dataURL, ",")
		if !ok {
			return "", nil, fmt.Errorf("malformed image data URL")
		}
		payload = rest
		if mime, _, ok := strings.Cut(strings.TrimPrefix(header, "data:"), ";"); ok {
			if _, suffix, ok := strings.Cut(mime, "/"); ok && suffix != "" {
				format = suffix
			}
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decoding image payload: %w", err)
	}
	return format, data, nil
}

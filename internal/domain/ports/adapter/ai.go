package adapter

import "context"

// GenerationRequest carries a fully built prompt plus sizing hints for the
// text provider.
type GenerationRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Usage for a single generation call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// TextGenerator is the port for the external story-text service. The returned
// text is an untrusted, loosely structured payload parsed by storygen.
type TextGenerator interface {
	Name() string
	Generate(ctx context.Context, req GenerationRequest) (string, Usage, error)
}

// ImageGenerator is the port for the optional cover-image service. A failure
// here never fails the overall story.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (url string, err error)
}

package ai

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"velvetink/internal/domain/ports/adapter"
	"velvetink/internal/infra/metrics"
)

var (
	errEmptyCompletion = errors.New("openai: completion has no choices")
	errEmptyImage      = errors.New("openai: image response has no url")
)

var (
	_ adapter.TextGenerator  = (*OpenAIAdapter)(nil)
	_ adapter.ImageGenerator = (*OpenAIAdapter)(nil)
)

// OpenAIAdapter is the primary text provider and the only cover-image
// provider.
type OpenAIAdapter struct {
	client     openai.Client
	textModel  string
	imageModel string
}

func NewOpenAIAdapter(apiKey, textModel, imageModel string) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, errors.New("openai: empty api key")
	}
	return &OpenAIAdapter{
		client:     openai.NewClient(option.WithAPIKey(apiKey)),
		textModel:  textModel,
		imageModel: imageModel,
	}, nil
}

func (o *OpenAIAdapter) Name() string { return "openai" }

func (o *OpenAIAdapter) Generate(ctx context.Context, req adapter.GenerationRequest) (string, adapter.Usage, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.textModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.Prompt),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		metrics.ObserveGeneration(o.Name(), o.textModel, 0, 0, 0, latency, false)
		return "", adapter.Usage{}, err
	}
	if len(resp.Choices) == 0 {
		metrics.ObserveGeneration(o.Name(), o.textModel, 0, 0, 0, latency, false)
		return "", adapter.Usage{}, errEmptyCompletion
	}

	usage := adapter.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	metrics.ObserveGeneration(o.Name(), o.textModel,
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, latency, true)
	return resp.Choices[0].Message.Content, usage, nil
}

func (o *OpenAIAdapter) GenerateImage(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:  openai.ImageModel(o.imageModel),
		Prompt: prompt,
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize1024x1024,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", errEmptyImage
	}
	return resp.Data[0].URL, nil
}

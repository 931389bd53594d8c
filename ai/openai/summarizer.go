// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/kairix/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrEmptyCompletion is returned when the model answers with no choices.
var ErrEmptyCompletion = errors.New("model returned no choices")

// Summarizer implements ai.Summarizer using OpenAI-compatible chat APIs.
type Summarizer struct {
	client llms.Model
	model  string
	logger *slog.Logger
}

// newSummarizer is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newSummarizer(config *ai.Config) (*Summarizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.InferenceHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.SummarizerModel),
	)
	if err != nil {
		return nil, err
	}

	return newSummarizerWithModel(client, config.SummarizerModel), nil
}

func newSummarizerWithModel(client llms.Model, model string) *Summarizer {
	return &Summarizer{
		client: client,
		model:  model,
		logger: slog.Default().With("component", "openai-summarizer"),
	}
}

// NewSummarizer creates a new summarizer using the provided configuration.
//
// Returns ai.Summarizer interface to enforce abstraction.
func NewSummarizer(config *ai.Config) (ai.Summarizer, error) {
	return newSummarizer(config)
}

// Predict sends the system instruction and the rendered user prompt to the model.
func (s *Summarizer) Predict(ctx context.Context, text string, params ai.InferenceParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	prompt, err := params.RenderPrompt(text)
	if err != nil {
		return "", err
	}

	content := make([]llms.MessageContent, 0, 2)
	if params.SystemInstruction != "" {
		content = append(content, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(params.SystemInstruction)},
		})
	}
	content = append(content, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(prompt)},
	})

	s.logger.Debug("requesting summary", "length", len(text), "max_tokens", params.RequestedTokens)
	opts := []llms.CallOption{
		llms.WithTemperature(params.Temperature),
		llms.WithMaxTokens(params.RequestedTokens),
	}
	// Backends that format chat turns themselves pick the template from metadata.
	if params.Template != "" {
		opts = append(opts, llms.WithMetadata(map[string]any{"template": params.Template}))
	}
	response, err := s.client.GenerateContent(ctx, content, opts...)
	if err != nil {
		s.logger.Error("failed to generate summary", "err", err)
		return "", err
	}
	if len(response.Choices) < 1 {
		return "", ErrEmptyCompletion
	}

	summary := cleanCompletion(response.Choices[0].Content)
	s.logger.Debug("summary received", "length", len(summary))
	return summary, nil
}

// ModelIdentifier returns the configured chat model.
func (s *Summarizer) ModelIdentifier() string {
	return s.model
}

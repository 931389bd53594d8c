package ai

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

// InputVariable is the placeholder substituted with the text being summarized.
const InputVariable = "input"

var (
	// ErrInvalidInferenceParams is returned when parameter validation fails.
	ErrInvalidInferenceParams = errors.New("invalid inference params")
)

// InferenceParams controls a single summarization call.
type InferenceParams struct {
	// RequestedTokens caps the completion length. Required, > 0.
	RequestedTokens int

	// Temperature is the sampling temperature, between 0 and 2.
	Temperature float64

	// Template names a chat template for providers that need one. Optional.
	// It is passed to the model as call metadata under "template".
	Template string

	// SystemInstruction is sent as the system message. Optional.
	SystemInstruction string

	// UserPrompt wraps the input text and must contain {input}.
	UserPrompt string
}

// InferenceOption adjusts InferenceParams before validation.
type InferenceOption func(*InferenceParams)

// WithRequestedTokens sets the completion token limit.
func WithRequestedTokens(n int) InferenceOption {
	return func(p *InferenceParams) { p.RequestedTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) InferenceOption {
	return func(p *InferenceParams) { p.Temperature = t }
}

// WithTemplate sets the chat template name.
func WithTemplate(name string) InferenceOption {
	return func(p *InferenceParams) { p.Template = name }
}

// WithSystemInstruction sets the system message.
func WithSystemInstruction(s string) InferenceOption {
	return func(p *InferenceParams) { p.SystemInstruction = s }
}

// WithUserPrompt sets the user prompt template.
func WithUserPrompt(s string) InferenceOption {
	return func(p *InferenceParams) { p.UserPrompt = s }
}

// DefaultInferenceParams returns parameters tuned for short factual summaries.
func DefaultInferenceParams() InferenceParams {
	return InferenceParams{
		RequestedTokens:   1000,
		Temperature:       0.7,
		SystemInstruction: "You condense excerpts of conversations into short, factual summaries written in the third person.",
		UserPrompt:        "Summarize the following conversation excerpt:\n\n{input}",
	}
}

// NewInferenceParams applies opts over the defaults and validates the result.
func NewInferenceParams(opts ...InferenceOption) (InferenceParams, error) {
	p := DefaultInferenceParams()
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.Validate(); err != nil {
		return InferenceParams{}, err
	}
	return p, nil
}

// Validate checks required fields and ranges.
func (p InferenceParams) Validate() error {
	if p.RequestedTokens <= 0 {
		return fmt.Errorf("%w: requested tokens must be greater than 0", ErrInvalidInferenceParams)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrInvalidInferenceParams)
	}
	if !strings.Contains(p.UserPrompt, "{"+InputVariable+"}") {
		return fmt.Errorf("%w: user prompt must contain {%s}", ErrInvalidInferenceParams, InputVariable)
	}
	return nil
}

// RenderPrompt substitutes text into the user prompt.
func (p InferenceParams) RenderPrompt(text string) (string, error) {
	return prompts.RenderTemplate(p.UserPrompt, prompts.TemplateFormatFString, map[string]any{
		InputVariable: text,
	})
}

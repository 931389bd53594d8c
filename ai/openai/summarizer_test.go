package openai

import (
	"context"
	"strings"
	"testing"

	"github.com/poiesic/kairix/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/fake"
)

// recordingModel answers every call with a fixed completion and keeps the
// options of the last call.
type recordingModel struct {
	answer string
	opts   llms.CallOptions
}

func (m *recordingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.opts = llms.CallOptions{}
	for _, opt := range options {
		opt(&m.opts)
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.answer}}}, nil
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestSummarizer_Predict(t *testing.T) {
	params, err := ai.NewInferenceParams()
	require.NoError(t, err)

	t.Run("returns cleaned completion", func(t *testing.T) {
		s := newSummarizerWithModel(fake.NewFakeLLM([]string{"  Summary: Alice adopted a cat.\n"}), "fake-model")

		got, err := s.Predict(context.Background(), "Alice: I adopted a cat today!", params)
		require.NoError(t, err)
		assert.Equal(t, "Alice adopted a cat.", got)
		assert.Equal(t, "fake-model", s.ModelIdentifier())
	})

	t.Run("provider error is returned", func(t *testing.T) {
		s := newSummarizerWithModel(fake.NewFakeLLM(nil), "fake-model")

		_, err := s.Predict(context.Background(), "text", params)
		assert.Error(t, err)
	})

	t.Run("template is sent as call metadata", func(t *testing.T) {
		model := &recordingModel{answer: "ok"}
		s := newSummarizerWithModel(model, "fake-model")

		withTemplate, err := ai.NewInferenceParams(ai.WithTemplate("chatml"))
		require.NoError(t, err)
		_, err = s.Predict(context.Background(), "text", withTemplate)
		require.NoError(t, err)
		assert.Equal(t, "chatml", model.opts.Metadata["template"])
		assert.Equal(t, withTemplate.RequestedTokens, model.opts.MaxTokens)

		_, err = s.Predict(context.Background(), "text", params)
		require.NoError(t, err)
		assert.NotContains(t, model.opts.Metadata, "template")
	})

	t.Run("invalid params are rejected before calling the model", func(t *testing.T) {
		s := newSummarizerWithModel(fake.NewFakeLLM([]string{"unused"}), "fake-model")

		_, err := s.Predict(context.Background(), "text", ai.InferenceParams{})
		assert.ErrorIs(t, err, ai.ErrInvalidInferenceParams)
	})
}

func TestCleanCompletion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "plain", want: "plain"},
		{in: "  padded \n", want: "padded"},
		{in: "SUMMARY: upper", want: "upper"},
		{in: "summary", want: "summary"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cleanCompletion(tt.in))
	}
}

func TestChunker_Recursive(t *testing.T) {
	cfg := ai.NewConfig(ai.WithChunking(ai.ChunkByCharacter, 40, 0))
	chunker, err := NewChunker(cfg)
	require.NoError(t, err)

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 10)
	first, err := chunker.Chunk(text)
	require.NoError(t, err)
	second, err := chunker.Chunk(text)
	require.NoError(t, err)

	require.NotEmpty(t, first)
	assert.Equal(t, first, second)
	for _, c := range first {
		assert.LessOrEqual(t, len(c), 40)
	}

	empty, err := chunker.Chunk("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInferenceParams(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		p, err := NewInferenceParams()
		require.NoError(t, err)
		assert.Equal(t, 1000, p.RequestedTokens)
		assert.InDelta(t, 0.7, p.Temperature, 1e-9)
	})

	t.Run("options override defaults", func(t *testing.T) {
		p, err := NewInferenceParams(
			WithRequestedTokens(256),
			WithTemperature(0),
			WithTemplate("chatml"),
			WithSystemInstruction("be brief"),
			WithUserPrompt("TL;DR: {input}"),
		)
		require.NoError(t, err)
		assert.Equal(t, 256, p.RequestedTokens)
		assert.Zero(t, p.Temperature)
		assert.Equal(t, "chatml", p.Template)
		assert.Equal(t, "be brief", p.SystemInstruction)
	})

	tests := []struct {
		name string
		opt  InferenceOption
	}{
		{name: "zero tokens", opt: WithRequestedTokens(0)},
		{name: "negative temperature", opt: WithTemperature(-0.1)},
		{name: "temperature too high", opt: WithTemperature(2.5)},
		{name: "prompt without input", opt: WithUserPrompt("Summarize this")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewInferenceParams(tt.opt)
			assert.ErrorIs(t, err, ErrInvalidInferenceParams)
		})
	}
}

func TestInferenceParams_RenderPrompt(t *testing.T) {
	p, err := NewInferenceParams(WithUserPrompt("Summarize:\n{input}\nEnd."))
	require.NoError(t, err)

	got, err := p.RenderPrompt("the cat sat")
	require.NoError(t, err)
	assert.Equal(t, "Summarize:\nthe cat sat\nEnd.", got)
}

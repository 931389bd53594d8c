package mock

import (
	"context"
	"sync/atomic"

	"github.com/poiesic/kairix/ai"
)

// MockSummarizer is a test double for ai.Summarizer.
type MockSummarizer struct {
	// PredictFunc is called by Predict if set.
	// If nil, Predict returns Response, or the input text when Response is empty.
	PredictFunc func(ctx context.Context, text string, params ai.InferenceParams) (string, error)

	// Response is the fixed summary returned by default.
	Response string

	// Model is reported by ModelIdentifier.
	Model string

	callCount atomic.Int64
}

// NewMockSummarizer creates a mock summarizer that returns response for every call.
func NewMockSummarizer(response string) *MockSummarizer {
	return &MockSummarizer{Response: response, Model: "mock-summarizer"}
}

// WithPredictFunc injects Predict behavior and returns the mock for chaining.
func (m *MockSummarizer) WithPredictFunc(fn func(ctx context.Context, text string, params ai.InferenceParams) (string, error)) *MockSummarizer {
	m.PredictFunc = fn
	return m
}

// Predict returns the configured summary.
func (m *MockSummarizer) Predict(ctx context.Context, text string, params ai.InferenceParams) (string, error) {
	m.callCount.Add(1)

	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, text, params)
	}
	if m.Response == "" {
		return text, nil
	}
	return m.Response, nil
}

// ModelIdentifier returns the configured model name.
func (m *MockSummarizer) ModelIdentifier() string {
	return m.Model
}

// CallCount returns the number of Predict calls.
func (m *MockSummarizer) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and injected behavior.
func (m *MockSummarizer) Reset() {
	m.callCount.Store(0)
	m.PredictFunc = nil
}

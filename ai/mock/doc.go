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


// Package mock provides test double implementations of the ai service interfaces.
//
// # Usage in Tests
//
//	provider := mock.NewMockProviderWithServices(
//	    mock.NewMockSummarizer("SUMMARY"),
//	    mock.NewMockEmbedder(),
//	    mock.NewFixedChunker(5),
//	)
//
//	provider.GetMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, errors.New("boom")
//	})
//
// # Default Behavior
//
//   - MockSummarizer: returns a fixed string, or echoes the input
//   - MockEmbedder: returns deterministic unit vectors derived from an FNV hash
//   - MockChunker: splits on blank lines
//
// Call counters are atomic so the mocks are safe under concurrent workers.
package mock

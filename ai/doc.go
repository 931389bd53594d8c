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


// Package ai provides abstractions for the model services used by kairix.
//
// Three services feed the memory pipeline:
//
//   - Summarizer: condenses a chunk of text, driven by InferenceParams
//   - Embedder: turns a summary into a fixed-length vector
//   - Chunker: splits a document into ordered chunks
//
// AIProvider bundles the three so they can be built once from a Config and
// handed to the synthesis orchestrator and the ingestion job.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible APIs through langchaingo
//   - ai/mock: deterministic test doubles
//
// Public constructors in ai/openai return interfaces. Mock constructors return
// concrete types so tests can inject behavior and assert on call counts.
//
//	params, err := ai.NewInferenceParams(ai.WithTemperature(0.2))
//	provider, err := openai.NewProvider(ai.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	summary, err := provider.Summarizer().Predict(ctx, chunk, params)
//	vector, err := provider.Embedder().EmbedText(ctx, summary)
package ai

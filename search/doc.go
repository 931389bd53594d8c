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


// Package search recalls memory shards for a free-text query.
//
// A query is embedded with the provider's embedder and matched against the
// vector_address of every MemoryShard by cosine similarity. Shards whose
// contents hold every meaningful query word get a fixed verbatim boost, and
// results are ranked by the combined score.
package search

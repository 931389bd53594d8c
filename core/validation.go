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


package core

import "fmt"

// ValidateSourceDocument validates a SourceDocument before it is stored.
//
// Validation rules:
//   - UID must not be empty
//   - Content must not be empty
func ValidateSourceDocument(doc *SourceDocument) error {
	if doc == nil {
		return fmt.Errorf("%w: source document is nil", ErrInvalidNode)
	}
	if doc.UID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidNode, ErrEmptyUID)
	}
	if doc.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidNode, ErrEmptyContent)
	}
	return nil
}

// ValidateAgent validates an Agent.
func ValidateAgent(agent *Agent) error {
	if agent == nil {
		return fmt.Errorf("%w: agent is nil", ErrInvalidNode)
	}
	if agent.Name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidNode, ErrEmptyAgentName)
	}
	return nil
}

// ValidateSummary validates a Summary. Empty summary text is allowed
// because a model may legitimately return nothing for a trivial chunk.
func ValidateSummary(summary *Summary) error {
	if summary == nil {
		return fmt.Errorf("%w: summary is nil", ErrInvalidNode)
	}
	if summary.UID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidNode, ErrEmptyUID)
	}
	return nil
}

// ValidateEmbedding validates an Embedding.
func ValidateEmbedding(embedding *Embedding) error {
	if embedding == nil {
		return fmt.Errorf("%w: embedding is nil", ErrInvalidNode)
	}
	if embedding.UID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidNode, ErrEmptyUID)
	}
	if len(embedding.Vector) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidNode, ErrEmptyVector)
	}
	return nil
}

// ValidateMemoryShard validates a MemoryShard.
//
// Validation rules:
//   - UID must not be empty
//   - VectorAddress must not be empty
func ValidateMemoryShard(shard *MemoryShard) error {
	if shard == nil {
		return fmt.Errorf("%w: memory shard is nil", ErrInvalidNode)
	}
	if shard.UID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidNode, ErrEmptyUID)
	}
	if len(shard.VectorAddress) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidNode, ErrEmptyVector)
	}
	return nil
}

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


package storage

import (
	"errors"
	"fmt"

	"github.com/poiesic/kairix/core"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey indicates a duplicate key violation.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidTransition indicates a status change that would move backwards.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrUnknownLabel indicates a node reference with an unsupported label.
	ErrUnknownLabel = errors.New("unknown node label")
)

// ValidateRef checks that ref names a known label and has a key. Stores
// call it before a label is used to build a key or a query.
func ValidateRef(ref core.NodeRef) error {
	switch ref.Label {
	case core.LabelSourceDocument, core.LabelAgent, core.LabelSummary, core.LabelEmbedding, core.LabelMemoryShard:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLabel, ref.Label)
	}
	if ref.Key == "" {
		return fmt.Errorf("%w: empty key for %s", ErrInvalidQuery, ref.Label)
	}
	return nil
}

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

import "errors"

// Domain validation errors
var (
	// ErrInvalidNode indicates a graph node failed validation.
	ErrInvalidNode = errors.New("invalid node")

	// ErrEmptyUID indicates the UID field is empty.
	ErrEmptyUID = errors.New("uid cannot be empty")

	// ErrEmptyContent indicates a text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyVector indicates a vector has no dimensions.
	ErrEmptyVector = errors.New("vector cannot be empty")

	// ErrEmptyAgentName indicates the agent Name field is empty.
	ErrEmptyAgentName = errors.New("agent name cannot be empty")

	// ErrVectorSize indicates packed vector bytes do not match the declared dimensions.
	ErrVectorSize = errors.New("vector size mismatch")
)

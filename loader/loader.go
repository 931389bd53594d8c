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


package loader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/poiesic/kairix/core"
	"github.com/poiesic/kairix/storage"
)

// SourceType is recorded on every imported document.
const SourceType = "chatgpt"

// ErrInvalidExport is returned when the file is not a JSON array of conversations.
var ErrInvalidExport = errors.New("invalid export")

// Result counts what LoadExport did.
type Result struct {
	Conversations int
	Created       int
	Skipped       int
}

type exportEntry struct {
	Title   *string `json:"title"`
	Mapping mapping `json:"mapping"`
}

// mapping keeps the export's node order, which encoding/json drops for maps.
type mapping struct {
	present bool
	nodes   []json.RawMessage
}

func (m *mapping) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("mapping must be an object")
	}
	m.present = true
	for dec.More() {
		if _, err := dec.Token(); err != nil {
			return err
		}
		var node json.RawMessage
		if err := dec.Decode(&node); err != nil {
			return err
		}
		m.nodes = append(m.nodes, node)
	}
	_, err = dec.Token()
	return err
}

type mappingNode struct {
	Message *struct {
		Author *struct {
			Role string `json:"role"`
		} `json:"author"`
		CreateTime *json.Number `json:"create_time"`
		Content    *struct {
			Parts []any `json:"parts"`
		} `json:"content"`
	} `json:"message"`
}

// renderNode formats one mapping node as "(<time>)-<role>: <text>\n".
// It reports false for nodes without message parts.
func renderNode(raw json.RawMessage) (string, bool) {
	var node mappingNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return "", false
	}
	msg := node.Message
	if msg == nil || msg.Content == nil || msg.Content.Parts == nil {
		return "", false
	}

	parts := make([]string, 0, len(msg.Content.Parts))
	for _, p := range msg.Content.Parts {
		if s, ok := p.(string); ok {
			parts = append(parts, s)
		}
	}

	sender, timestamp := "unknown", "unknown"
	if msg.Author != nil && msg.Author.Role != "" {
		sender = msg.Author.Role
	}
	if msg.CreateTime != nil {
		timestamp = msg.CreateTime.String()
	}
	return fmt.Sprintf("(%s)-%s: %s\n", timestamp, sender, strings.Join(parts, "\n")), true
}

// DocumentUID names the SourceDocument for a conversation title in an export file.
func DocumentUID(path, title string) string {
	return filepath.Base(path) + "::" + strings.ReplaceAll(title, " ", "_")
}

// LoadExport reads a ChatGPT export at path and creates one SourceDocument
// per conversation. Conversations without a title or mapping, or whose
// document already exists, are skipped.
func LoadExport(ctx context.Context, graph storage.GraphStore, path string, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "loader", "file", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []exportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}
	logger.Info("loaded conversations", "count", len(entries))

	result := &Result{Conversations: len(entries)}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if entry.Title == nil || *entry.Title == "" {
			logger.Info("skipping conversation with no title")
			result.Skipped++
			continue
		}
		title := *entry.Title
		if !entry.Mapping.present {
			logger.Info("skipping conversation with no messages", "title", title)
			result.Skipped++
			continue
		}

		var messages []string
		for _, raw := range entry.Mapping.nodes {
			if text, ok := renderNode(raw); ok {
				messages = append(messages, text)
			}
		}
		if len(messages) == 0 {
			logger.Info("skipping conversation with no readable messages", "title", title)
			result.Skipped++
			continue
		}

		uid := DocumentUID(path, title)
		_, created, err := graph.CreateSourceDocument(ctx, &core.SourceDocument{
			UID:        uid,
			Label:      title,
			SourceType: SourceType,
			Content:    strings.Join(messages, "\n"),
		})
		if err != nil {
			return result, fmt.Errorf("save source document for %s: %w", title, err)
		}
		if !created {
			logger.Info("skipping existing source", "uid", uid)
			result.Skipped++
			continue
		}
		logger.Debug("wrote source document", "uid", uid, "messages", len(messages))
		result.Created++
	}

	logger.Info("export loaded", "created", result.Created, "skipped", result.Skipped)
	return result, nil
}

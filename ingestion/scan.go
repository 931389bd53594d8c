package ingestion

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/poiesic/kairix/core"
)

// Input formats recorded on a Conversation.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// DefaultPatterns are the file globs scanned when none are configured.
var DefaultPatterns = []string{"*.json", "*.txt", "*.log"}

// scanFiles returns every file in dir matching patterns, sorted and without duplicates.
func scanFiles(dir string, patterns []string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnreadable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDirectoryUnreadable, dir)
	}
	// Glob swallows permission errors, so probe the directory first.
	if _, err := os.ReadDir(dir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnreadable, err)
	}

	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type transcript struct {
	Messages *[]message `json:"messages"`
}

// parseConversation reads a {"messages": [...]} document. Anything that is
// not such a document, including JSON without a messages array, becomes a
// single user message holding the whole text. Messages without content are
// dropped.
func parseConversation(content []byte) ([]message, string) {
	var t transcript
	if err := json.Unmarshal(content, &t); err == nil && t.Messages != nil {
		return slices.DeleteFunc(*t.Messages, func(m message) bool {
			return strings.TrimSpace(m.Content) == ""
		}), FormatJSON
	}
	if strings.TrimSpace(string(content)) == "" {
		return nil, FormatText
	}
	return []message{{Role: "user", Content: string(content)}}, FormatText
}

// sourceLabel names the SourceDocument mirrored for fragment idx.
func sourceLabel(conversationID string, idx int) string {
	return fmt.Sprintf("conversation:%s:fragment:%d", conversationID, idx)
}

func newFragment(conversationID string, idx int, msg message) *core.Fragment {
	return &core.Fragment{
		ConversationID: conversationID,
		SequenceNumber: idx,
		Content:        msg.Content,
		Role:           strings.TrimSpace(msg.Role),
		TokenCount:     core.TokenCount(msg.Content),
	}
}

package neo4j

import "github.com/poiesic/kairix/core"

// keyProperty names the unique property of a label.
func keyProperty(label string) string {
	if label == core.LabelAgent {
		return "name"
	}
	return "uid"
}

func sourceDocumentProps(doc *core.SourceDocument) map[string]any {
	return map[string]any{
		"uid":          doc.UID,
		"source_label": doc.Label,
		"source_type":  doc.SourceType,
		"content":      doc.Content,
	}
}

func sourceDocumentFromProps(props map[string]any) *core.SourceDocument {
	return &core.SourceDocument{
		UID:        stringProp(props, "uid"),
		Label:      stringProp(props, "source_label"),
		SourceType: stringProp(props, "source_type"),
		Content:    stringProp(props, "content"),
	}
}

func summaryProps(s *core.Summary) map[string]any {
	return map[string]any{
		"uid":          s.UID,
		"summary_text": s.Text,
	}
}

func summaryFromProps(props map[string]any) *core.Summary {
	return &core.Summary{
		UID:  stringProp(props, "uid"),
		Text: stringProp(props, "summary_text"),
	}
}

func embeddingProps(e *core.Embedding) map[string]any {
	return map[string]any{
		"uid":             e.UID,
		"embedding_model": e.Model,
		"vector":          float64s(e.Vector),
	}
}

func embeddingFromProps(props map[string]any) *core.Embedding {
	return &core.Embedding{
		UID:    stringProp(props, "uid"),
		Model:  stringProp(props, "embedding_model"),
		Vector: float32s(props["vector"]),
	}
}

func memoryShardProps(s *core.MemoryShard) map[string]any {
	return map[string]any{
		"uid":            s.UID,
		"shard_contents": s.Contents,
		"vector_address": float64s(s.VectorAddress),
	}
}

func memoryShardFromProps(props map[string]any) *core.MemoryShard {
	return &core.MemoryShard{
		UID:           stringProp(props, "uid"),
		Contents:      stringProp(props, "shard_contents"),
		VectorAddress: float32s(props["vector_address"]),
	}
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	if m == nil {
		return map[string]any{}
	}
	return m
}

// float64s widens a vector for the Bolt protocol, which only carries float64.
func float64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// float32s narrows a list property read back from Neo4j.
func float32s(v any) []float32 {
	switch list := v.(type) {
	case []any:
		out := make([]float32, 0, len(list))
		for _, item := range list {
			switch f := item.(type) {
			case float64:
				out = append(out, float32(f))
			case int64:
				out = append(out, float32(f))
			}
		}
		return out
	case []float64:
		out := make([]float32, len(list))
		for i, f := range list {
			out[i] = float32(f)
		}
		return out
	case []float32:
		return list
	}
	return nil
}

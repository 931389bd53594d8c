package synthesis

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/kairix/storage"
)

// BrokenShard is a shard whose links do not resolve.
type BrokenShard struct {
	UID      string   `json:"uid"`
	Problems []string `json:"problems"`
}

// VerifyReport is the result of a consistency check.
type VerifyReport struct {
	Checked int           `json:"checked"`
	Broken  []BrokenShard `json:"broken,omitempty"`
}

// OK reports whether every checked shard is intact.
func (r *VerifyReport) OK() bool {
	return len(r.Broken) == 0
}

// Verify walks every MemoryShard and checks that its summary, embedding and
// source document edges exist and point at nodes that resolve. The agent edge
// is optional; when present its target must resolve too.
// It only reads; repairing is left to the next Synthesize run.
func (o *Orchestrator) Verify(ctx context.Context) (*VerifyReport, error) {
	uids, err := o.graph.MemoryShardUIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list memory shards: %w", err)
	}

	report := &VerifyReport{}
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		problems, err := o.checkShard(ctx, uid)
		if err != nil {
			return nil, err
		}
		report.Checked++
		if len(problems) > 0 {
			report.Broken = append(report.Broken, BrokenShard{UID: uid, Problems: problems})
		}
	}

	o.logger.Info("verify finished", "checked", report.Checked, "broken", len(report.Broken))
	return report, nil
}

func (o *Orchestrator) checkShard(ctx context.Context, uid string) ([]string, error) {
	links, err := o.graph.ShardLinks(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("links of %s: %w", uid, err)
	}

	checks := []struct {
		name     string
		target   string
		optional bool
		resolve  func(context.Context, string) error
	}{
		{"summary", links.SummaryUID, false, func(ctx context.Context, k string) error { _, err := o.graph.GetSummary(ctx, k); return err }},
		{"embedding", links.EmbeddingUID, false, func(ctx context.Context, k string) error { _, err := o.graph.GetEmbedding(ctx, k); return err }},
		{"source document", links.SourceUID, false, func(ctx context.Context, k string) error { _, err := o.graph.GetSourceDocument(ctx, k); return err }},
		{"agent", links.AgentName, true, func(ctx context.Context, k string) error { _, err := o.graph.FindAgent(ctx, k); return err }},
	}

	var problems []string
	for _, check := range checks {
		if check.target == "" {
			if !check.optional {
				problems = append(problems, "missing "+check.name)
			}
			continue
		}
		err := check.resolve(ctx, check.target)
		if errors.Is(err, storage.ErrNotFound) {
			problems = append(problems, fmt.Sprintf("%s %s not found", check.name, check.target))
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return problems, nil
}

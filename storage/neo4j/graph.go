package neo4j

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/poiesic/kairix/core"
	"github.com/poiesic/kairix/storage"
)

// GraphStore implements storage.GraphStore on Neo4j.
// Labels and relationship types are formatted into Cypher, so Connect
// rejects any label that is not a core constant.
type GraphStore struct {
	client     *Client
	dimensions int
	logger     *slog.Logger
}

var _ storage.GraphStore = (*GraphStore)(nil)

// NewGraphStore creates a graph store over client. The store takes ownership
// of the client and closes it on Close.
func NewGraphStore(client *Client, dimensions int) *GraphStore {
	if dimensions <= 0 {
		dimensions = DefaultConfig().VectorDimensions
	}
	return &GraphStore{
		client:     client,
		dimensions: dimensions,
		logger:     client.logger,
	}
}

// Open connects to Neo4j and returns a graph store.
func Open(ctx context.Context, cfg Config) (*GraphStore, error) {
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewGraphStore(client, cfg.VectorDimensions), nil
}

func (g *GraphStore) Close(ctx context.Context) error {
	return g.client.Close(ctx)
}

func (g *GraphStore) GetSourceDocument(ctx context.Context, uid string) (*core.SourceDocument, error) {
	props, err := g.get(ctx, core.LabelSourceDocument, uid)
	if err != nil {
		return nil, err
	}
	return sourceDocumentFromProps(props), nil
}

func (g *GraphStore) CreateSourceDocument(ctx context.Context, doc *core.SourceDocument) (*core.SourceDocument, bool, error) {
	if err := core.ValidateSourceDocument(doc); err != nil {
		return nil, false, err
	}
	props, created, err := g.merge(ctx, core.LabelSourceDocument, doc.UID, sourceDocumentProps(doc))
	if err != nil {
		return nil, false, err
	}
	return sourceDocumentFromProps(props), created, nil
}

func (g *GraphStore) AllSourceDocuments(ctx context.Context) ([]*core.SourceDocument, error) {
	query := fmt.Sprintf("MATCH (n:%s) RETURN properties(n) AS props ORDER BY n.uid", core.LabelSourceDocument)
	rows, err := g.readProps(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	docs := make([]*core.SourceDocument, 0, len(rows))
	for _, props := range rows {
		docs = append(docs, sourceDocumentFromProps(props))
	}
	return docs, nil
}

func (g *GraphStore) FindAgent(ctx context.Context, name string) (*core.Agent, error) {
	props, err := g.get(ctx, core.LabelAgent, name)
	if err != nil {
		return nil, err
	}
	return &core.Agent{Name: stringProp(props, "name")}, nil
}

func (g *GraphStore) CreateAgent(ctx context.Context, agent *core.Agent) (*core.Agent, bool, error) {
	if err := core.ValidateAgent(agent); err != nil {
		return nil, false, err
	}
	props, created, err := g.merge(ctx, core.LabelAgent, agent.Name, map[string]any{"name": agent.Name})
	if err != nil {
		return nil, false, err
	}
	return &core.Agent{Name: stringProp(props, "name")}, created, nil
}

func (g *GraphStore) GetSummary(ctx context.Context, uid string) (*core.Summary, error) {
	props, err := g.get(ctx, core.LabelSummary, uid)
	if err != nil {
		return nil, err
	}
	return summaryFromProps(props), nil
}

func (g *GraphStore) CreateSummary(ctx context.Context, summary *core.Summary) (*core.Summary, bool, error) {
	if err := core.ValidateSummary(summary); err != nil {
		return nil, false, err
	}
	props, created, err := g.merge(ctx, core.LabelSummary, summary.UID, summaryProps(summary))
	if err != nil {
		return nil, false, err
	}
	return summaryFromProps(props), created, nil
}

func (g *GraphStore) GetEmbedding(ctx context.Context, uid string) (*core.Embedding, error) {
	props, err := g.get(ctx, core.LabelEmbedding, uid)
	if err != nil {
		return nil, err
	}
	return embeddingFromProps(props), nil
}

func (g *GraphStore) CreateEmbedding(ctx context.Context, embedding *core.Embedding) (*core.Embedding, bool, error) {
	if err := core.ValidateEmbedding(embedding); err != nil {
		return nil, false, err
	}
	props, created, err := g.merge(ctx, core.LabelEmbedding, embedding.UID, embeddingProps(embedding))
	if err != nil {
		return nil, false, err
	}
	return embeddingFromProps(props), created, nil
}

func (g *GraphStore) GetMemoryShard(ctx context.Context, uid string) (*core.MemoryShard, error) {
	props, err := g.get(ctx, core.LabelMemoryShard, uid)
	if err != nil {
		return nil, err
	}
	return memoryShardFromProps(props), nil
}

func (g *GraphStore) CreateMemoryShard(ctx context.Context, shard *core.MemoryShard) (*core.MemoryShard, bool, error) {
	if err := core.ValidateMemoryShard(shard); err != nil {
		return nil, false, err
	}
	props, created, err := g.merge(ctx, core.LabelMemoryShard, shard.UID, memoryShardProps(shard))
	if err != nil {
		return nil, false, err
	}
	return memoryShardFromProps(props), created, nil
}

func (g *GraphStore) MemoryShardUIDs(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("MATCH (n:%s) RETURN n.uid AS uid ORDER BY uid", core.LabelMemoryShard)
	result, err := g.execute(ctx, neo4j.AccessModeRead, query, nil, func(rec *neo4j.Record) (any, error) {
		uid, _ := rec.Get("uid")
		s, _ := uid.(string)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	uids := make([]string, 0, len(result))
	for _, v := range result {
		uids = append(uids, v.(string))
	}
	return uids, nil
}

// Connect creates from -[rel]-> to. For single-target relations any other
// edge of the same type leaving from is removed in the same transaction.
func (g *GraphStore) Connect(ctx context.Context, from core.NodeRef, rel core.Relation, to core.NodeRef) error {
	if err := errors.Join(storage.ValidateRef(from), storage.ValidateRef(to)); err != nil {
		return err
	}
	query := connectQuery(from.Label, rel, to.Label)
	rows, err := g.execute(ctx, neo4j.AccessModeWrite, query, map[string]any{
		"from": from.Key,
		"to":   to.Key,
	}, func(rec *neo4j.Record) (any, error) { return true, nil })
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s %s -[%s]-> %s %s", storage.ErrNotFound, from.Label, from.Key, rel, to.Label, to.Key)
	}
	return nil
}

func connectQuery(fromLabel string, rel core.Relation, toLabel string) string {
	match := fmt.Sprintf("MATCH (a:%s {%s: $from})\nMATCH (b:%s {%s: $to})\n",
		fromLabel, keyProperty(fromLabel), toLabel, keyProperty(toLabel))
	if !rel.SingleTarget() {
		return match + fmt.Sprintf("MERGE (a)-[:%s]->(b)\nRETURN 1 AS ok", rel)
	}
	return match + fmt.Sprintf(`OPTIONAL MATCH (a)-[old:%s]->(other)
WHERE other <> b
WITH a, b, collect(old) AS stale
FOREACH (r IN stale | DELETE r)
MERGE (a)-[:%s]->(b)
RETURN 1 AS ok`, rel, rel)
}

func (g *GraphStore) ShardLinks(ctx context.Context, shardUID string) (*core.ShardLinks, error) {
	query := fmt.Sprintf(`MATCH (s:%s {uid: $uid})
OPTIONAL MATCH (s)-[:%s]->(sm)
OPTIONAL MATCH (s)-[:%s]->(e)
OPTIONAL MATCH (s)-[:%s]->(d)
OPTIONAL MATCH (s)-[:%s]->(a)
RETURN sm.uid AS summary, e.uid AS embedding, d.uid AS source, a.name AS agent
LIMIT 1`, core.LabelMemoryShard, core.RelHasSummary, core.RelHasEmbedding, core.RelDerivedFrom, core.RelBelongsTo)

	rows, err := g.execute(ctx, neo4j.AccessModeRead, query, map[string]any{"uid": shardUID}, func(rec *neo4j.Record) (any, error) {
		values := make(map[string]any, 4)
		for _, key := range []string{"summary", "embedding", "source", "agent"} {
			values[key], _ = rec.Get(key)
		}
		return &core.ShardLinks{
			ShardUID:     shardUID,
			SummaryUID:   stringProp(values, "summary"),
			EmbeddingUID: stringProp(values, "embedding"),
			SourceUID:    stringProp(values, "source"),
			AgentName:    stringProp(values, "agent"),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, storage.ErrNotFound
	}
	return rows[0].(*core.ShardLinks), nil
}

// FindSimilarShards queries the shard vector index.
func (g *GraphStore) FindSimilarShards(ctx context.Context, vector []float32, minScore float32, limit int) ([]core.ShardMatch, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be greater than 0", storage.ErrInvalidQuery)
	}
	query := `CALL db.index.vector.queryNodes($index, $k, $vector)
YIELD node, score
WHERE score >= $min_score
RETURN properties(node) AS props, score
ORDER BY score DESC, node.uid
LIMIT $k`

	rows, err := g.execute(ctx, neo4j.AccessModeRead, query, map[string]any{
		"index":     VectorIndexName,
		"k":         limit,
		"vector":    float64s(vector),
		"min_score": float64(minScore),
	}, func(rec *neo4j.Record) (any, error) {
		props, _ := rec.Get("props")
		score, _ := rec.Get("score")
		s, _ := score.(float64)
		return core.ShardMatch{Shard: memoryShardFromProps(asMap(props)), Score: float32(s)}, nil
	})
	if err != nil {
		return nil, err
	}
	matches := make([]core.ShardMatch, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, row.(core.ShardMatch))
	}
	return matches, nil
}

func (g *GraphStore) Counts(ctx context.Context) (*core.GraphCounts, error) {
	counts := &core.GraphCounts{}
	targets := []struct {
		label string
		dst   *int
	}{
		{core.LabelSourceDocument, &counts.SourceDocuments},
		{core.LabelAgent, &counts.Agents},
		{core.LabelSummary, &counts.Summaries},
		{core.LabelEmbedding, &counts.Embeddings},
		{core.LabelMemoryShard, &counts.MemoryShards},
	}
	for _, target := range targets {
		query := fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS total", target.label)
		rows, err := g.execute(ctx, neo4j.AccessModeRead, query, nil, func(rec *neo4j.Record) (any, error) {
			total, _ := rec.Get("total")
			n, _ := total.(int64)
			return int(n), nil
		})
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			*target.dst = rows[0].(int)
		}
	}
	return counts, nil
}

// get loads the properties of one node by key.
func (g *GraphStore) get(ctx context.Context, label, key string) (map[string]any, error) {
	query := fmt.Sprintf("MATCH (n:%s {%s: $key}) RETURN properties(n) AS props", label, keyProperty(label))
	rows, err := g.readProps(ctx, query, map[string]any{"key": key})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s %s", storage.ErrNotFound, label, key)
	}
	return rows[0], nil
}

// merge inserts a node unless one with the same key exists. The write id
// stamped on creation tells this call apart from a concurrent winner.
func (g *GraphStore) merge(ctx context.Context, label, key string, props map[string]any) (map[string]any, bool, error) {
	query := fmt.Sprintf(`MERGE (n:%s {%s: $key})
ON CREATE SET n += $props, n.write_id = $write_id
RETURN properties(n) AS props, n.write_id = $write_id AS created`, label, keyProperty(label))

	writeID := uuid.NewString()
	rows, err := g.execute(ctx, neo4j.AccessModeWrite, query, map[string]any{
		"key":      key,
		"props":    props,
		"write_id": writeID,
	}, func(rec *neo4j.Record) (any, error) {
		p, _ := rec.Get("props")
		c, _ := rec.Get("created")
		created, _ := c.(bool)
		return mergeResult{props: asMap(p), created: created}, nil
	})
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, fmt.Errorf("neo4j: merge %s %s returned no rows", label, key)
	}
	res := rows[0].(mergeResult)
	if res.created {
		g.logger.Debug("node created", "label", label, "key", key)
	}
	return res.props, res.created, nil
}

type mergeResult struct {
	props   map[string]any
	created bool
}

func (g *GraphStore) readProps(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	rows, err := g.execute(ctx, neo4j.AccessModeRead, query, params, func(rec *neo4j.Record) (any, error) {
		p, _ := rec.Get("props")
		return asMap(p), nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.(map[string]any))
	}
	return out, nil
}

// execute runs query in a managed transaction and maps every record.
func (g *GraphStore) execute(ctx context.Context, mode neo4j.AccessMode, query string, params map[string]any, mapRecord func(*neo4j.Record) (any, error)) ([]any, error) {
	if g.client == nil || g.client.Driver == nil {
		return nil, storage.ErrStorageClosed
	}
	session := g.client.session(ctx, mode)
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		var rows []any
		for res.Next(ctx) {
			row, err := mapRecord(res.Record())
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
		return rows, res.Err()
	}

	var out any
	var err error
	if mode == neo4j.AccessModeWrite {
		out, err = session.ExecuteWrite(ctx, work)
	} else {
		out, err = session.ExecuteRead(ctx, work)
	}
	if err != nil {
		return nil, fmt.Errorf("neo4j: %w", err)
	}
	rows, _ := out.([]any)
	return rows, nil
}

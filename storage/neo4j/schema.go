package neo4j

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/poiesic/kairix/core"
)

// VectorIndexName is the vector index over MemoryShard.vector_address.
const VectorIndexName = "vector_index_MemoryShard_vector_address"

// schemaStatements returns the constraint and index DDL for the memory graph.
func schemaStatements(dimensions int) []string {
	stmts := make([]string, 0, 6)
	for _, label := range []string{
		core.LabelSourceDocument,
		core.LabelSummary,
		core.LabelEmbedding,
		core.LabelMemoryShard,
	} {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE CONSTRAINT %s_uid_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.uid IS UNIQUE",
			label, label))
	}
	stmts = append(stmts,
		fmt.Sprintf("CREATE CONSTRAINT %s_name_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.name IS UNIQUE",
			core.LabelAgent, core.LabelAgent),
		fmt.Sprintf("CREATE VECTOR INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.vector_address) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}",
			VectorIndexName, core.LabelMemoryShard, dimensions),
	)
	return stmts
}

// Bootstrap installs uniqueness constraints and the shard vector index.
// Every statement is IF NOT EXISTS, so it can run on each start.
func (g *GraphStore) Bootstrap(ctx context.Context) error {
	session := g.client.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, stmt := range schemaStatements(g.dimensions) {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			return fmt.Errorf("neo4j: bootstrap: %w", err)
		}
		if _, err := res.Consume(ctx); err != nil {
			return fmt.Errorf("neo4j: bootstrap: %w", err)
		}
	}
	g.logger.Info("graph schema ready", "dimensions", g.dimensions)
	return nil
}

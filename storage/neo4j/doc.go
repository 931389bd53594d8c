// Package neo4j stores the memory graph in Neo4j.
//
// Nodes are written with MERGE on their unique key so creation is an atomic
// insert-if-absent guarded by the constraints Bootstrap installs. Similarity
// search goes through the MemoryShard vector index.
package neo4j

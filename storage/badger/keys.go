package badger

import (
	"strings"

	"github.com/poiesic/kairix/core"
)

// Key prefixes for different data types.
// Segments are separated by NUL so uids may contain any printable character.
const (
	nodePrefix      = "node"
	edgePrefix      = "edge"
	multiEdgePrefix = "medge"
	sep             = "\x00"
)

// makeNodeKey generates a key for a node.
// Format: node|label|key
func makeNodeKey(label, key string) []byte {
	return []byte(nodePrefix + sep + label + sep + key)
}

// makeNodeLabelPrefix generates the scan prefix for all nodes of a label.
func makeNodeLabelPrefix(label string) []byte {
	return []byte(nodePrefix + sep + label + sep)
}

// nodeKeyFromKey extracts the node key from a full node key.
func nodeKeyFromKey(label string, full []byte) string {
	return strings.TrimPrefix(string(full), string(makeNodeLabelPrefix(label)))
}

// makeEdgeKey generates the key holding the single target of a relation.
// Format: edge|fromLabel|fromKey|rel
func makeEdgeKey(from core.NodeRef, rel core.Relation) []byte {
	return []byte(edgePrefix + sep + from.Label + sep + from.Key + sep + string(rel))
}

// makeMultiEdgeKey generates a key for one edge of a many-to-many relation.
// Format: medge|fromLabel|fromKey|rel|toKey
func makeMultiEdgeKey(from core.NodeRef, rel core.Relation, toKey string) []byte {
	return []byte(multiEdgePrefix + sep + from.Label + sep + from.Key + sep + string(rel) + sep + toKey)
}

// encodeRef and decodeRef store an edge target as label|key.
func encodeRef(ref core.NodeRef) []byte {
	return []byte(ref.Label + sep + ref.Key)
}

func decodeRef(data []byte) core.NodeRef {
	label, key, _ := strings.Cut(string(data), sep)
	return core.NodeRef{Label: label, Key: key}
}

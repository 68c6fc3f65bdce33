package service

import (
	"github.com/Njoselson/tenant-legal-tools-sub000/models"
)

// RewriteRelations rewrites freshly extracted relationship edges so both
// endpoints reference resolved node identifiers. Edges referencing unknown
// provisional identifiers are dropped, as are edges that collapse into
// self-loops after resolution and duplicates within the batch. Store-level
// duplicates are handled by EdgeRepository.GetOrCreate.
func RewriteRelations(
	relations []models.ExtractedRelation,
	resolved map[string]Resolution,
) []models.RelationshipEdge {
	type edgeKey struct {
		src, dst string
		relType  models.RelationType
	}
	seen := make(map[edgeKey]bool, len(relations))

	edges := make([]models.RelationshipEdge, 0, len(relations))
	for _, rel := range relations {
		src, ok := resolved[rel.SourceRef]
		if !ok {
			continue
		}
		dst, ok := resolved[rel.TargetRef]
		if !ok {
			continue
		}
		// Self-loops are an artifact of two provisional concepts resolving
		// to the same node
		if src.NodeID == dst.NodeID {
			continue
		}
		key := edgeKey{src.NodeID.String(), dst.NodeID.String(), rel.Type}
		if seen[key] {
			continue
		}
		seen[key] = true

		edges = append(edges, models.RelationshipEdge{
			SourceID:      src.NodeID,
			TargetID:      dst.NodeID,
			Type:          rel.Type,
			EvidenceLevel: rel.EvidenceLevel,
		})
	}
	return edges
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Njoselson/tenant-legal-tools-sub000/models"
	"github.com/Njoselson/tenant-legal-tools-sub000/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mergeMaxAttempts bounds the optimistic-concurrency retry loop for one node
const mergeMaxAttempts = 3

// ConceptStore is the graph-store surface IngestService needs for nodes
type ConceptStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ConceptNode, error)
	Create(ctx context.Context, node *models.ConceptNode, embedding []float64) error
	Update(ctx context.Context, node *models.ConceptNode) error
}

// EdgeStore is the graph-store surface IngestService needs for edges
type EdgeStore interface {
	GetOrCreate(ctx context.Context, edge *models.RelationshipEdge) (bool, error)
}

// Resolver decides node identity for a batch of extracted concepts
type Resolver interface {
	Resolve(ctx context.Context, concepts []models.ExtractedConcept) (map[string]Resolution, *models.ResolutionReport)
}

// Embedder generates name embeddings for newly created nodes
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

// IngestService applies one document's extraction batch to the knowledge
// graph: resolve identities, create or merge nodes, rewrite and insert
// relationship edges
type IngestService struct {
	resolver Resolver
	concepts ConceptStore
	edges    EdgeStore
	embedder Embedder
	log      *zap.SugaredLogger
}

// IngestServiceOption is a functional option for IngestService
type IngestServiceOption func(*IngestService)

// IngestWithResolver sets the resolver
func IngestWithResolver(resolver Resolver) IngestServiceOption {
	return func(s *IngestService) {
		s.resolver = resolver
	}
}

// IngestWithConceptStore sets the concept store
func IngestWithConceptStore(store ConceptStore) IngestServiceOption {
	return func(s *IngestService) {
		s.concepts = store
	}
}

// IngestWithEdgeStore sets the edge store
func IngestWithEdgeStore(store EdgeStore) IngestServiceOption {
	return func(s *IngestService) {
		s.edges = store
	}
}

// IngestWithEmbedder sets the embedding client used for new nodes
func IngestWithEmbedder(embedder Embedder) IngestServiceOption {
	return func(s *IngestService) {
		s.embedder = embedder
	}
}

// IngestWithLogger sets the logger
func IngestWithLogger(log *zap.SugaredLogger) IngestServiceOption {
	return func(s *IngestService) {
		s.log = log
	}
}

// NewIngestService creates a new ingest service
func NewIngestService(opts ...IngestServiceOption) *IngestService {
	s := &IngestService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestRequest is one document's extraction output
type IngestRequest struct {
	Concepts  []models.ExtractedConcept
	Relations []models.ExtractedRelation
}

// ResolveAndMerge resolves the batch against the existing graph, creates or
// merges nodes, and inserts rewritten relationship edges. Failures local to
// one concept or edge are counted in the report and never abort the batch;
// the returned error is non-nil only when the service is miswired.
func (s *IngestService) ResolveAndMerge(ctx context.Context, req IngestRequest) (*models.ResolutionReport, error) {
	if s.resolver == nil {
		return nil, errors.New("resolver not set")
	}
	if s.concepts == nil {
		return nil, errors.New("concept store not set")
	}
	if s.edges == nil {
		return nil, errors.New("edge store not set")
	}

	resolutions, report := s.resolver.Resolve(ctx, req.Concepts)

	// Group batch items by resolved node so in-batch repeats of a new
	// concept produce one node, not several
	conceptsByNode := make(map[uuid.UUID][]models.ExtractedConcept)
	nodeOrder := make([]uuid.UUID, 0, len(req.Concepts))
	isNewNode := make(map[uuid.UUID]bool)
	for _, c := range req.Concepts {
		res, ok := resolutions[c.ProvisionalID]
		if !ok {
			continue
		}
		if _, seen := conceptsByNode[res.NodeID]; !seen {
			nodeOrder = append(nodeOrder, res.NodeID)
			isNewNode[res.NodeID] = !res.Existing
		}
		conceptsByNode[res.NodeID] = append(conceptsByNode[res.NodeID], c)
	}

	for _, nodeID := range nodeOrder {
		batch := conceptsByNode[nodeID]
		if isNewNode[nodeID] {
			s.createNode(ctx, nodeID, resolutions[batch[0].ProvisionalID], batch, report)
			continue
		}
		for _, c := range batch {
			s.mergeNode(ctx, nodeID, c, report)
		}
	}

	edges := RewriteRelations(req.Relations, resolutions)
	for i := range edges {
		created, err := s.edges.GetOrCreate(ctx, &edges[i])
		if err != nil {
			report.FailedWrites++
			if s.log != nil {
				s.log.Warnw("failed to insert edge",
					"source", edges[i].SourceID, "target", edges[i].TargetID,
					"type", edges[i].Type, "error", err)
			}
			continue
		}
		if created {
			report.EdgesCreated++
		} else {
			report.EdgesSkipped++
		}
	}

	return report, nil
}

// createNode builds a fresh node from the first batch item and folds any
// in-batch repeats into it before the single insert
func (s *IngestService) createNode(
	ctx context.Context,
	nodeID uuid.UUID,
	resolution Resolution,
	batch []models.ExtractedConcept,
	report *models.ResolutionReport,
) {
	node := NewConceptFromExtraction(resolution, batch[0])
	node.ID = nodeID
	for _, c := range batch[1:] {
		node = MergeConcept(node, c)
	}
	report.ChunksLinked += len(node.ChunkIDs)

	embedding := s.embedName(ctx, node)

	if err := s.concepts.Create(ctx, node, embedding); err != nil {
		report.FailedWrites++
		if s.log != nil {
			s.log.Warnw("failed to create concept node",
				"name", node.Name, "kind", node.Kind, "error", err)
		}
	}
}

// mergeNode performs the read-modify-write merge against an existing node,
// retrying on version conflicts from concurrent ingestions
func (s *IngestService) mergeNode(
	ctx context.Context,
	nodeID uuid.UUID,
	incoming models.ExtractedConcept,
	report *models.ResolutionReport,
) {
	for attempt := 0; attempt < mergeMaxAttempts; attempt++ {
		existing, err := s.concepts.GetByID(ctx, nodeID)
		if err != nil {
			report.FailedWrites++
			if s.log != nil {
				s.log.Warnw("failed to load node for merge", "node_id", nodeID, "error", err)
			}
			return
		}

		merged := MergeConcept(existing, incoming)
		report.ChunksLinked += len(merged.ChunkIDs) - len(existing.ChunkIDs)

		err = s.concepts.Update(ctx, merged)
		if err == nil {
			return
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			report.FailedWrites++
			if s.log != nil {
				s.log.Warnw("failed to write merged node", "node_id", nodeID, "error", err)
			}
			return
		}
		// Lost the race; re-read fresh state and retry
	}

	report.MergeConflicts++
	if s.log != nil {
		s.log.Warnw("merge conflict persisted after retries",
			"node_id", nodeID, "attempts", mergeMaxAttempts)
	}
}

// embedName computes the name embedding for a new node, degrading to nil
// (left for backfill) when the embedding service is unavailable
func (s *IngestService) embedName(ctx context.Context, node *models.ConceptNode) []float64 {
	if s.embedder == nil {
		return nil
	}
	embedding, err := s.embedder.EmbedText(ctx, fmt.Sprintf("[%s] %s", node.Kind, node.Name))
	if err != nil {
		if s.log != nil {
			s.log.Warnw("failed to embed new node name, leaving for backfill",
				"name", node.Name, "error", err)
		}
		return nil
	}
	return embedding
}

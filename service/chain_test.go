package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Njoselson/tenant-legal-tools-sub000/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNodeStore struct {
	nodes map[uuid.UUID]*models.ConceptNode
}

func (f *fakeNodeStore) GetByID(_ context.Context, id uuid.UUID) (*models.ConceptNode, error) {
	node, ok := f.nodes[id]
	if !ok {
		return nil, errors.New("node not found")
	}
	return node, nil
}

func (f *fakeNodeStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.ConceptNode, error) {
	out := make([]*models.ConceptNode, 0, len(ids))
	for _, id := range ids {
		if node, ok := f.nodes[id]; ok {
			out = append(out, node)
		}
	}
	return out, nil
}

type fakeGraph struct {
	edges   []models.RelationshipEdge
	removed map[string]bool // edges Exists denies even though ListFrom returned them
}

func edgeFingerprint(src, dst uuid.UUID, relType models.RelationType) string {
	return fmt.Sprintf("%s|%s|%s", src, dst, relType)
}

func (f *fakeGraph) ListFrom(_ context.Context, sourceID uuid.UUID, relType models.RelationType) ([]models.RelationshipEdge, error) {
	var out []models.RelationshipEdge
	for _, e := range f.edges {
		if e.SourceID == sourceID && e.Type == relType {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeGraph) Exists(_ context.Context, sourceID, targetID uuid.UUID, relType models.RelationType) (bool, error) {
	if f.removed[edgeFingerprint(sourceID, targetID, relType)] {
		return false, nil
	}
	for _, e := range f.edges {
		if e.SourceID == sourceID && e.TargetID == targetID && e.Type == relType {
			return true, nil
		}
	}
	return false, nil
}

type fakeExplainer struct {
	calls int
}

func (f *fakeExplainer) ExplainChain(_ context.Context, chain models.ProofChain) (string, error) {
	f.calls++
	return "Because " + chain.LawName + " applies, " + chain.RemedyName + " is available.", nil
}

// tenancyGraph builds issue -> law -> remedy -> evidence for the tests
func tenancyGraph() (*fakeNodeStore, *fakeGraph, map[string]uuid.UUID) {
	ids := map[string]uuid.UUID{
		"issue":    uuid.New(),
		"law":      uuid.New(),
		"remedy":   uuid.New(),
		"evidence": uuid.New(),
	}
	nodes := &fakeNodeStore{nodes: map[uuid.UUID]*models.ConceptNode{
		ids["issue"]: {ID: ids["issue"], Kind: models.KindIssue, Name: "No heat in winter"},
		ids["law"]: {ID: ids["law"], Kind: models.KindLaw, Name: "Warranty of Habitability",
			Authority: models.AuthorityBinding, Jurisdiction: "New York",
			BestQuote: &models.Quote{Text: "fit for human habitation", Source: "RPL 235-b"}},
		ids["remedy"]: {ID: ids["remedy"], Kind: models.KindRemedy, Name: "Rent abatement",
			Jurisdiction: "New York"},
		ids["evidence"]: {ID: ids["evidence"], Kind: models.KindEvidenceType, Name: "Temperature log"},
	}}
	graph := &fakeGraph{
		edges: []models.RelationshipEdge{
			{SourceID: ids["issue"], TargetID: ids["law"], Type: models.RelAppliesTo},
			{SourceID: ids["law"], TargetID: ids["remedy"], Type: models.RelEnables},
			{SourceID: ids["remedy"], TargetID: ids["evidence"], Type: models.RelRequires},
		},
		removed: map[string]bool{},
	}
	return nodes, graph, ids
}

func TestChainService_BuildProofChains(t *testing.T) {
	t.Run("full chain with required evidence", func(t *testing.T) {
		nodes, graph, ids := tenancyGraph()
		s := NewChainService(ChainWithNodeStore(nodes), ChainWithGraphReader(graph))

		result, err := s.BuildProofChains(context.Background(), []uuid.UUID{ids["issue"]}, "", 10)
		require.NoError(t, err)
		require.Len(t, result.Chains, 1)
		assert.Empty(t, result.Unsupported)

		chain := result.Chains[0]
		assert.Equal(t, "No heat in winter", chain.IssueName)
		assert.Equal(t, "Warranty of Habitability", chain.LawName)
		assert.Equal(t, "Rent abatement", chain.RemedyName)
		assert.Equal(t, []string{"Temperature log"}, chain.RequiredEvidence)
		assert.Len(t, chain.Hops, 3)
		assert.Equal(t, "RPL 235-b", chain.Hops[0].Citation)
		assert.InDelta(t, 1.0, chain.Completeness, 1e-9)
	})

	t.Run("chain without evidence is incomplete", func(t *testing.T) {
		nodes, graph, ids := tenancyGraph()
		graph.edges = graph.edges[:2] // drop the REQUIRES edge
		s := NewChainService(ChainWithNodeStore(nodes), ChainWithGraphReader(graph))

		result, err := s.BuildProofChains(context.Background(), []uuid.UUID{ids["issue"]}, "", 10)
		require.NoError(t, err)
		require.Len(t, result.Chains, 1)
		assert.Empty(t, result.Chains[0].RequiredEvidence)
		assert.InDelta(t, 2.0/3.0, result.Chains[0].Completeness, 1e-9)
	})

	t.Run("issue with no graph support is reported unsupported", func(t *testing.T) {
		nodes, graph, _ := tenancyGraph()
		orphan := uuid.New()
		nodes.nodes[orphan] = &models.ConceptNode{ID: orphan, Kind: models.KindIssue, Name: "Mold"}
		s := NewChainService(ChainWithNodeStore(nodes), ChainWithGraphReader(graph))

		result, err := s.BuildProofChains(context.Background(), []uuid.UUID{orphan}, "", 10)
		require.NoError(t, err)
		assert.Empty(t, result.Chains)
		assert.Equal(t, []uuid.UUID{orphan}, result.Unsupported)
	})

	t.Run("jurisdiction filter excludes foreign laws", func(t *testing.T) {
		nodes, graph, ids := tenancyGraph()
		s := NewChainService(ChainWithNodeStore(nodes), ChainWithGraphReader(graph))

		result, err := s.BuildProofChains(context.Background(), []uuid.UUID{ids["issue"]}, "California", 10)
		require.NoError(t, err)
		assert.Empty(t, result.Chains)
		assert.Len(t, result.Unsupported, 1)

		result, err = s.BuildProofChains(context.Background(), []uuid.UUID{ids["issue"]}, "new york", 10)
		require.NoError(t, err)
		assert.Len(t, result.Chains, 1)
	})

	t.Run("limit caps chains per issue", func(t *testing.T) {
		nodes, graph, ids := tenancyGraph()
		for i := 0; i < 5; i++ {
			remedyID := uuid.New()
			nodes.nodes[remedyID] = &models.ConceptNode{
				ID: remedyID, Kind: models.KindRemedy, Name: fmt.Sprintf("Remedy %d", i),
			}
			graph.edges = append(graph.edges, models.RelationshipEdge{
				SourceID: ids["law"], TargetID: remedyID, Type: models.RelEnables,
			})
		}
		s := NewChainService(ChainWithNodeStore(nodes), ChainWithGraphReader(graph))

		result, err := s.BuildProofChains(context.Background(), []uuid.UUID{ids["issue"]}, "", 3)
		require.NoError(t, err)
		assert.Len(t, result.Chains, 3)
	})

	t.Run("dangling edge targets are skipped", func(t *testing.T) {
		nodes, graph, ids := tenancyGraph()
		graph.edges = append(graph.edges,
			models.RelationshipEdge{SourceID: ids["issue"], TargetID: uuid.New(), Type: models.RelAppliesTo},
			models.RelationshipEdge{SourceID: ids["remedy"], TargetID: uuid.New(), Type: models.RelRequires},
		)
		s := NewChainService(ChainWithNodeStore(nodes), ChainWithGraphReader(graph))

		result, err := s.BuildProofChains(context.Background(), []uuid.UUID{ids["issue"]}, "", 10)
		require.NoError(t, err)
		require.Len(t, result.Chains, 1)
		assert.Equal(t, []string{"Temperature log"}, result.Chains[0].RequiredEvidence)
	})

	t.Run("non-law APPLIES_TO targets are skipped", func(t *testing.T) {
		nodes, graph, ids := tenancyGraph()
		agency := uuid.New()
		nodes.nodes[agency] = &models.ConceptNode{ID: agency, Kind: models.KindAgency, Name: "HPD"}
		graph.edges = append(graph.edges, models.RelationshipEdge{
			SourceID: ids["issue"], TargetID: agency, Type: models.RelAppliesTo,
		})
		s := NewChainService(ChainWithNodeStore(nodes), ChainWithGraphReader(graph))

		result, err := s.BuildProofChains(context.Background(), []uuid.UUID{ids["issue"]}, "", 10)
		require.NoError(t, err)
		assert.Len(t, result.Chains, 1)
	})
}

func TestChainService_VerifyChain(t *testing.T) {
	buildChain := func(t *testing.T) (*ChainService, *fakeGraph, models.ProofChain) {
		t.Helper()
		nodes, graph, ids := tenancyGraph()
		s := NewChainService(ChainWithNodeStore(nodes), ChainWithGraphReader(graph))
		result, err := s.BuildProofChains(context.Background(), []uuid.UUID{ids["issue"]}, "", 10)
		require.NoError(t, err)
		require.Len(t, result.Chains, 1)
		return s, graph, result.Chains[0]
	}

	t.Run("intact chain keeps its strength", func(t *testing.T) {
		s, _, chain := buildChain(t)
		strength, err := s.VerifyChain(context.Background(), &chain, 0.8)
		require.NoError(t, err)
		assert.InDelta(t, 0.8, strength, 1e-9)
		assert.True(t, chain.Verification.AllPassed())
	})

	t.Run("missing hop downgrades strength", func(t *testing.T) {
		s, graph, chain := buildChain(t)
		graph.removed[edgeFingerprint(chain.Hops[2].FromID, chain.Hops[2].ToID, models.RelRequires)] = true

		strength, err := s.VerifyChain(context.Background(), &chain, 0.8)
		require.NoError(t, err)
		assert.False(t, chain.Verification.GraphPathExists)
		assert.True(t, chain.Verification.LawsApplyToIssue)
		assert.InDelta(t, 0.8*downgradeNoPath, strength, 1e-9)
	})

	t.Run("missing APPLIES_TO compounds downgrades", func(t *testing.T) {
		s, graph, chain := buildChain(t)
		graph.removed[edgeFingerprint(chain.Hops[0].FromID, chain.Hops[0].ToID, models.RelAppliesTo)] = true

		strength, err := s.VerifyChain(context.Background(), &chain, 0.8)
		require.NoError(t, err)
		assert.False(t, chain.Verification.GraphPathExists)
		assert.False(t, chain.Verification.LawsApplyToIssue)
		assert.InDelta(t, 0.8*downgradeNoPath*downgradeLawsNotApply, strength, 1e-9)
	})

	t.Run("floors stop the collapse but never raise strength", func(t *testing.T) {
		s, graph, chain := buildChain(t)
		for _, hop := range chain.Hops {
			graph.removed[edgeFingerprint(hop.FromID, hop.ToID, hop.Relation)] = true
		}

		strength, err := s.VerifyChain(context.Background(), &chain, 0.9)
		require.NoError(t, err)
		// 0.9*0.3=0.27, then 0.27*0.5 floors at 0.2, and the final
		// downgrade cannot raise it back above 0.2
		assert.LessOrEqual(t, strength, 0.9)
		assert.InDelta(t, floorLawsNotApply, strength, 1e-9)

		strength, err = s.VerifyChain(context.Background(), &chain, 0.05)
		require.NoError(t, err)
		assert.LessOrEqual(t, strength, 0.05, "verification must never increase strength")
	})

	t.Run("explanation only on fully verified chains", func(t *testing.T) {
		nodes, graph, ids := tenancyGraph()
		explainer := &fakeExplainer{}
		s := NewChainService(ChainWithNodeStore(nodes), ChainWithGraphReader(graph),
			ChainWithExplainer(explainer))

		result, err := s.BuildProofChains(context.Background(), []uuid.UUID{ids["issue"]}, "", 10)
		require.NoError(t, err)
		chain := result.Chains[0]

		_, err = s.VerifyChain(context.Background(), &chain, 0.7)
		require.NoError(t, err)
		assert.Equal(t, 1, explainer.calls)
		assert.NotEmpty(t, chain.Explanation)

		broken := result.Chains[0]
		broken.Explanation = ""
		graph.removed[edgeFingerprint(broken.Hops[1].FromID, broken.Hops[1].ToID, models.RelEnables)] = true
		_, err = s.VerifyChain(context.Background(), &broken, 0.7)
		require.NoError(t, err)
		assert.Equal(t, 1, explainer.calls, "broken chains must not be explained")
		assert.Empty(t, broken.Explanation)
	})
}

func TestDowngrade(t *testing.T) {
	assert.InDelta(t, 0.24, downgrade(0.8, 0.3, 0.1), 1e-9)
	assert.InDelta(t, 0.1, downgrade(0.2, 0.3, 0.1), 1e-9, "floor holds")
	assert.InDelta(t, 0.05, downgrade(0.05, 0.3, 0.1), 1e-9, "floor never raises strength")
}

func TestJurisdictionMatches(t *testing.T) {
	assert.True(t, jurisdictionMatches("", "New York"))
	assert.True(t, jurisdictionMatches("New York", ""))
	assert.True(t, jurisdictionMatches("new york", "New York City"))
	assert.True(t, jurisdictionMatches("New York City", "new york"))
	assert.False(t, jurisdictionMatches("California", "New York"))
}

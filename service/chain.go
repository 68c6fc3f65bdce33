package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Njoselson/tenant-legal-tools-sub000/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Strength-downgrade factors applied when verification checks fail. A
// failed check multiplies the evidence strength and the floor keeps the
// result from collapsing to zero; verification never increases strength.
const (
	downgradeNoPath       = 0.3
	floorNoPath           = 0.1
	downgradeLawsNotApply = 0.5
	floorLawsNotApply     = 0.2
	downgradeNotEnabled   = 0.7
	floorNotEnabled       = 0.3
)

// NodeStore is the read-only node surface ChainService traverses over
type NodeStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ConceptNode, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.ConceptNode, error)
}

// GraphReader is the read-only edge surface ChainService traverses over.
// Exists is the independent verification primitive.
type GraphReader interface {
	ListFrom(ctx context.Context, sourceID uuid.UUID, relType models.RelationType) ([]models.RelationshipEdge, error)
	Exists(ctx context.Context, sourceID, targetID uuid.UUID, relType models.RelationType) (bool, error)
}

// Explainer renders a natural-language explanation of a verified chain. It
// may describe the chain but cannot alter any computed score.
type Explainer interface {
	ExplainChain(ctx context.Context, chain models.ProofChain) (string, error)
}

// ChainService builds and verifies proof chains
// (issue -> law -> remedy -> required evidence) over the consolidated graph
type ChainService struct {
	nodes     NodeStore
	graph     GraphReader
	explainer Explainer
	log       *zap.SugaredLogger
}

// ChainServiceOption is a functional option for ChainService
type ChainServiceOption func(*ChainService)

// ChainWithNodeStore sets the node store
func ChainWithNodeStore(nodes NodeStore) ChainServiceOption {
	return func(s *ChainService) {
		s.nodes = nodes
	}
}

// ChainWithGraphReader sets the edge reader
func ChainWithGraphReader(graph GraphReader) ChainServiceOption {
	return func(s *ChainService) {
		s.graph = graph
	}
}

// ChainWithExplainer sets the optional explanation generator
func ChainWithExplainer(explainer Explainer) ChainServiceOption {
	return func(s *ChainService) {
		s.explainer = explainer
	}
}

// ChainWithLogger sets the logger
func ChainWithLogger(log *zap.SugaredLogger) ChainServiceOption {
	return func(s *ChainService) {
		s.log = log
	}
}

// NewChainService creates a new chain service
func NewChainService(opts ...ChainServiceOption) *ChainService {
	s := &ChainService{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChainResult is the outcome of building chains for a set of issues.
// Issues with zero graph support are listed in Unsupported and never
// produce chains, explanations, or scores.
type ChainResult struct {
	Chains      []models.ProofChain
	Unsupported []uuid.UUID
}

// BuildProofChains traverses outbound from each issue through
// APPLIES_TO -> law, ENABLES -> remedy, REQUIRES -> evidence type, and
// returns every distinct chain up to limit per issue. Traversal is
// read-only and runs in parallel across issues.
func (s *ChainService) BuildProofChains(
	ctx context.Context,
	issueIDs []uuid.UUID,
	jurisdiction string,
	limit int,
) (*ChainResult, error) {
	if s.nodes == nil || s.graph == nil {
		return nil, errors.New("chain service not fully wired")
	}
	if limit <= 0 {
		limit = 10
	}

	result := &ChainResult{}
	var mu sync.Mutex

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for _, issueID := range issueIDs {
		issueID := issueID
		eg.Go(func() error {
			chains, err := s.buildForIssue(egctx, issueID, jurisdiction, limit)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if len(chains) == 0 {
				// No graph support: the issue is omitted from output
				// entirely so nothing downstream can explain around it
				result.Unsupported = append(result.Unsupported, issueID)
				return nil
			}
			result.Chains = append(result.Chains, chains...)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Deterministic output order regardless of traversal interleaving
	sort.Slice(result.Chains, func(i, j int) bool {
		a, b := result.Chains[i], result.Chains[j]
		if a.IssueID != b.IssueID {
			return a.IssueID.String() < b.IssueID.String()
		}
		if a.LawID != b.LawID {
			return a.LawID.String() < b.LawID.String()
		}
		return a.RemedyID.String() < b.RemedyID.String()
	})

	return result, nil
}

// buildForIssue enumerates every law/remedy path for one issue
func (s *ChainService) buildForIssue(
	ctx context.Context,
	issueID uuid.UUID,
	jurisdiction string,
	limit int,
) ([]models.ProofChain, error) {
	issue, err := s.nodes.GetByID(ctx, issueID)
	if err != nil {
		if s.log != nil {
			s.log.Warnw("issue node not found", "issue_id", issueID, "error", err)
		}
		return nil, nil
	}

	lawEdges, err := s.graph.ListFrom(ctx, issueID, models.RelAppliesTo)
	if err != nil {
		return nil, fmt.Errorf("failed to traverse APPLIES_TO from issue: %w", err)
	}
	laws, err := s.nodesByID(ctx, targetIDs(lawEdges))
	if err != nil {
		return nil, fmt.Errorf("failed to load law nodes: %w", err)
	}

	var chains []models.ProofChain
	for _, lawEdge := range lawEdges {
		if len(chains) >= limit {
			break
		}
		law, ok := laws[lawEdge.TargetID]
		if !ok || law.Kind != models.KindLaw {
			continue
		}
		if !jurisdictionMatches(jurisdiction, law.Jurisdiction) {
			continue
		}

		remedyEdges, err := s.graph.ListFrom(ctx, law.ID, models.RelEnables)
		if err != nil {
			return nil, fmt.Errorf("failed to traverse ENABLES from law: %w", err)
		}
		remedies, err := s.nodesByID(ctx, targetIDs(remedyEdges))
		if err != nil {
			return nil, fmt.Errorf("failed to load remedy nodes: %w", err)
		}

		for _, remedyEdge := range remedyEdges {
			if len(chains) >= limit {
				break
			}
			remedy, ok := remedies[remedyEdge.TargetID]
			if !ok || remedy.Kind != models.KindRemedy {
				continue
			}

			chain, err := s.assembleChain(ctx, issue, law, remedy)
			if err != nil {
				return nil, err
			}
			chains = append(chains, chain)
		}
	}
	return chains, nil
}

// targetIDs collects the target side of a set of edges
func targetIDs(edges []models.RelationshipEdge) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.TargetID)
	}
	return ids
}

// nodesByID batch-loads the nodes one hop's edges point at and indexes them
// by identifier; dangling targets are simply absent from the map
func (s *ChainService) nodesByID(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.ConceptNode, error) {
	nodes, err := s.nodes.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*models.ConceptNode, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}
	return byID, nil
}

// assembleChain collects the required-evidence hops for one
// issue/law/remedy path and scores its completeness
func (s *ChainService) assembleChain(
	ctx context.Context,
	issue, law, remedy *models.ConceptNode,
) (models.ProofChain, error) {
	chain := models.ProofChain{
		IssueID:            issue.ID,
		IssueName:          issue.Name,
		LawID:              law.ID,
		LawName:            law.Name,
		LawAuthority:       law.Authority,
		RemedyID:           remedy.ID,
		RemedyName:         remedy.Name,
		RemedyJurisdiction: remedy.Jurisdiction,
		Hops: []models.ChainHop{
			{FromID: issue.ID, ToID: law.ID, Relation: models.RelAppliesTo, NodeName: law.Name, Citation: nodeCitation(law)},
			{FromID: law.ID, ToID: remedy.ID, Relation: models.RelEnables, NodeName: remedy.Name, Citation: nodeCitation(remedy)},
		},
	}

	evidenceEdges, err := s.graph.ListFrom(ctx, remedy.ID, models.RelRequires)
	if err != nil {
		return chain, fmt.Errorf("failed to traverse REQUIRES from remedy: %w", err)
	}
	evidenceNodes, err := s.nodesByID(ctx, targetIDs(evidenceEdges))
	if err != nil {
		return chain, fmt.Errorf("failed to load evidence nodes: %w", err)
	}

	for _, evidenceEdge := range evidenceEdges {
		evidence, ok := evidenceNodes[evidenceEdge.TargetID]
		if !ok || evidence.Kind != models.KindEvidenceType {
			continue
		}
		chain.Hops = append(chain.Hops, models.ChainHop{
			FromID:   remedy.ID,
			ToID:     evidence.ID,
			Relation: models.RelRequires,
			NodeName: evidence.Name,
			Citation: nodeCitation(evidence),
		})
		chain.RequiredEvidence = append(chain.RequiredEvidence, evidence.Name)
	}

	// Two structural hops plus a required-evidence hop make a complete chain
	achieved := 2.0
	if len(chain.RequiredEvidence) > 0 {
		achieved = 3.0
	}
	chain.Completeness = achieved / 3.0

	return chain, nil
}

// VerifyChain independently re-confirms every hop of a chain against the
// graph and downgrades the evidence strength for each failed check. The
// returned strength never exceeds the input.
func (s *ChainService) VerifyChain(
	ctx context.Context,
	chain *models.ProofChain,
	strength float64,
) (float64, error) {
	if s.graph == nil {
		return strength, errors.New("graph reader not set")
	}

	verification := models.ChainVerification{
		GraphPathExists:       true,
		LawsApplyToIssue:      false,
		RemediesEnabledByLaws: false,
	}

	for _, hop := range chain.Hops {
		exists, err := s.graph.Exists(ctx, hop.FromID, hop.ToID, hop.Relation)
		if err != nil {
			return strength, fmt.Errorf("hop verification failed: %w", err)
		}
		if !exists {
			verification.GraphPathExists = false
			continue
		}
		switch hop.Relation {
		case models.RelAppliesTo:
			verification.LawsApplyToIssue = true
		case models.RelEnables:
			verification.RemediesEnabledByLaws = true
		}
	}

	adjusted := clamp01(strength)
	if !verification.GraphPathExists {
		adjusted = downgrade(adjusted, downgradeNoPath, floorNoPath)
	}
	if !verification.LawsApplyToIssue {
		adjusted = downgrade(adjusted, downgradeLawsNotApply, floorLawsNotApply)
	}
	if !verification.RemediesEnabledByLaws {
		adjusted = downgrade(adjusted, downgradeNotEnabled, floorNotEnabled)
	}
	if adjusted > strength {
		adjusted = strength
	}

	chain.Verification = verification

	if s.explainer != nil && verification.AllPassed() {
		explanation, err := s.explainer.ExplainChain(ctx, *chain)
		if err != nil {
			if s.log != nil {
				s.log.Warnw("chain explanation failed, returning chain without one",
					"issue", chain.IssueName, "error", err)
			}
		} else {
			chain.Explanation = explanation
		}
	}

	return adjusted, nil
}

// downgrade multiplies the strength by a penalty factor without letting it
// fall through the floor, and never raises it above its current value
func downgrade(strength, factor, floor float64) float64 {
	adjusted := strength * factor
	if adjusted < floor {
		adjusted = floor
	}
	if adjusted > strength {
		adjusted = strength
	}
	return adjusted
}

// jurisdictionMatches applies the caller's jurisdiction filter; an empty
// filter or an empty node jurisdiction passes
func jurisdictionMatches(filter, nodeJurisdiction string) bool {
	if filter == "" || nodeJurisdiction == "" {
		return true
	}
	f := strings.ToLower(strings.TrimSpace(filter))
	n := strings.ToLower(strings.TrimSpace(nodeJurisdiction))
	return strings.Contains(n, f) || strings.Contains(f, n)
}

// nodeCitation picks the citation reference shown for a hop, preferring the
// node's best quote source
func nodeCitation(node *models.ConceptNode) string {
	if node.BestQuote != nil && node.BestQuote.Source != "" {
		return node.BestQuote.Source
	}
	if citation, ok := node.Attributes["citation"].(string); ok {
		return citation
	}
	return ""
}

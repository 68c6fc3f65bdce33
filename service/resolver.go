package service

import (
	"context"
	"sync"
	"time"

	"github.com/Njoselson/tenant-legal-tools-sub000/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ResolutionOutcome describes how a concept was resolved
type ResolutionOutcome string

const (
	// OutcomeAutoMerged means similarity alone was high enough to reuse an
	// existing node without a judgment call
	OutcomeAutoMerged ResolutionOutcome = "auto_merged"
	// OutcomeJudgmentConfirmed means an ambiguous pair was confirmed as the
	// same concept by the judgment service
	OutcomeJudgmentConfirmed ResolutionOutcome = "judgment_confirmed"
	// OutcomeCreatedNew means no existing node matched and a new one was minted
	OutcomeCreatedNew ResolutionOutcome = "created_new"
	// OutcomeFailedLookup means the similarity service was unavailable and a
	// new node was minted as the safe default
	OutcomeFailedLookup ResolutionOutcome = "failed_lookup"
	// OutcomeFailedJudgment means the judgment service was unavailable and
	// the ambiguous pair was conservatively treated as "no match"
	OutcomeFailedJudgment ResolutionOutcome = "failed_judgment"
)

// Resolution is the resolved identity for one extracted concept. When
// Existing is false, NodeID is freshly minted and the node does not yet
// exist in the store.
type Resolution struct {
	NodeID   uuid.UUID
	Existing bool
	Outcome  ResolutionOutcome
	Score    float64
}

// ResolverService decides, per newly extracted concept, whether to reuse an
// existing node or mint a new one. It has no side effects on the store;
// node creation and merging belong to IngestService.
type ResolverService struct {
	searcher SimilaritySearcher
	judge    Judge
	log      *zap.SugaredLogger

	autoMergeThreshold float64
	judgmentThreshold  float64
	topK               int
	judgmentBatchSize  int
	lookupConcurrency  int
	lookupTimeout      time.Duration
	judgmentTimeout    time.Duration
}

// ResolverServiceOption is a functional option for ResolverService
type ResolverServiceOption func(*ResolverService)

// ResolverWithSearcher sets the similarity searcher
func ResolverWithSearcher(searcher SimilaritySearcher) ResolverServiceOption {
	return func(s *ResolverService) {
		s.searcher = searcher
	}
}

// ResolverWithJudge sets the judgment service
func ResolverWithJudge(judge Judge) ResolverServiceOption {
	return func(s *ResolverService) {
		s.judge = judge
	}
}

// ResolverWithLogger sets the logger
func ResolverWithLogger(log *zap.SugaredLogger) ResolverServiceOption {
	return func(s *ResolverService) {
		s.log = log
	}
}

// ResolverWithThresholds overrides the similarity decision thresholds
func ResolverWithThresholds(autoMerge, judgment float64) ResolverServiceOption {
	return func(s *ResolverService) {
		s.autoMergeThreshold = autoMerge
		s.judgmentThreshold = judgment
	}
}

// NewResolverService creates a new resolver service
func NewResolverService(opts ...ResolverServiceOption) *ResolverService {
	s := &ResolverService{
		autoMergeThreshold: clamp01(envFloat("RESOLVER_AUTO_MERGE_THRESHOLD", 0.95)),
		judgmentThreshold:  clamp01(envFloat("RESOLVER_JUDGMENT_THRESHOLD", 0.70)),
		topK:               envInt("RESOLVER_TOP_K", 3),
		judgmentBatchSize:  envInt("RESOLVER_JUDGMENT_BATCH_SIZE", 10),
		lookupConcurrency:  envInt("RESOLVER_LOOKUP_CONCURRENCY", 8),
		lookupTimeout:      time.Duration(envInt("RESOLVER_LOOKUP_TIMEOUT_MS", 2500)) * time.Millisecond,
		judgmentTimeout:    time.Duration(envInt("RESOLVER_JUDGMENT_TIMEOUT_MS", 4000)) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// pendingJudgment is a concept awaiting batched same-concept verdicts
// against every retrieved candidate in the ambiguous score band, best first
type pendingJudgment struct {
	key        string
	concept    models.ExtractedConcept
	candidates []SimilarityMatch
}

// Resolve maps every extracted concept's provisional identifier to a
// resolved node identifier. Repeated concepts within the batch (same
// normalized name and kind) share one resolution decision. Lookup and
// judgment failures degrade to minting a new node and are counted in the
// report, never raised as errors.
func (s *ResolverService) Resolve(
	ctx context.Context,
	concepts []models.ExtractedConcept,
) (map[string]Resolution, *models.ResolutionReport) {
	report := &models.ResolutionReport{ConceptsSeen: len(concepts)}
	resolved := make(map[string]Resolution, len(concepts))
	if len(concepts) == 0 {
		return resolved, report
	}

	// In-batch cache: one decision per normalized (name, kind)
	type cacheEntry struct {
		concept models.ExtractedConcept
		keys    []string // provisional IDs sharing this decision
	}
	order := make([]string, 0, len(concepts))
	byKey := make(map[string]*cacheEntry, len(concepts))
	for _, c := range concepts {
		key := normalizeConceptKey(c.Name) + "|" + string(c.Kind)
		entry, ok := byKey[key]
		if !ok {
			entry = &cacheEntry{concept: c}
			byKey[key] = entry
			order = append(order, key)
		}
		entry.keys = append(entry.keys, c.ProvisionalID)
	}

	// Phase 1: concurrent similarity lookups, one per distinct concept.
	// Each lookup has its own timeout so one slow call cannot stall the batch.
	decisions := make(map[string]Resolution, len(byKey))
	var pending []pendingJudgment
	var mu sync.Mutex

	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.lookupConcurrency)
	for _, key := range order {
		key := key
		entry := byKey[key]
		eg.Go(func() error {
			decision, ambiguous := s.lookupOne(egctx, entry.concept)
			mu.Lock()
			defer mu.Unlock()
			if ambiguous != nil {
				ambiguous.key = key
				pending = append(pending, *ambiguous)
				return nil
			}
			decisions[key] = decision
			return nil
		})
	}
	_ = eg.Wait()

	// Phase 2: ambiguous candidate pairs across the whole batch, flattened
	// and grouped into as few judgment calls as possible. A concept may
	// carry several candidates in the ambiguous band; the best-ranked
	// confirmed one wins.
	type pairRef struct {
		pendingIdx   int
		candidateIdx int
	}
	var refs []pairRef
	var pairs []JudgmentPair
	for pi, p := range pending {
		for ci, cand := range p.candidates {
			refs = append(refs, pairRef{pendingIdx: pi, candidateIdx: ci})
			pairs = append(pairs, JudgmentPair{
				ExistingName:         cand.Name,
				ExistingDescription:  cand.Description,
				CandidateName:        p.concept.Name,
				CandidateDescription: p.concept.Description,
			})
		}
	}

	verdictsByPending := make([][]Verdict, len(pending))
	for pi, p := range pending {
		verdictsByPending[pi] = make([]Verdict, len(p.candidates))
	}
	for start := 0; start < len(pairs); start += s.judgmentBatchSize {
		end := start + s.judgmentBatchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		for i, verdict := range s.judgePairs(ctx, pairs[start:end]) {
			ref := refs[start+i]
			verdictsByPending[ref.pendingIdx][ref.candidateIdx] = verdict
		}
	}

	for pi, p := range pending {
		decisions[p.key] = decideFromVerdicts(p, verdictsByPending[pi])
	}

	// Phase 3: fan decisions back out to every provisional identifier
	for key, entry := range byKey {
		decision := decisions[key]
		for _, provisionalID := range entry.keys {
			resolved[provisionalID] = decision
			switch decision.Outcome {
			case OutcomeAutoMerged:
				report.AutoMerged++
			case OutcomeJudgmentConfirmed:
				report.JudgmentConfirmed++
			case OutcomeFailedLookup:
				report.FailedLookups++
				report.CreatedNew++
			case OutcomeFailedJudgment:
				report.FailedJudgments++
				report.CreatedNew++
			default:
				report.CreatedNew++
			}
		}
	}

	if s.log != nil {
		s.log.Infow("resolved concept batch",
			"concepts", report.ConceptsSeen,
			"auto_merged", report.AutoMerged,
			"judgment_confirmed", report.JudgmentConfirmed,
			"created_new", report.CreatedNew,
			"failed_lookups", report.FailedLookups,
			"failed_judgments", report.FailedJudgments,
		)
	}

	return resolved, report
}

// lookupOne runs the similarity lookup for one concept and applies the
// threshold decision. A non-nil pendingJudgment means the score landed in
// the ambiguous range.
func (s *ResolverService) lookupOne(ctx context.Context, concept models.ExtractedConcept) (Resolution, *pendingJudgment) {
	if s.searcher == nil {
		return Resolution{NodeID: uuid.New(), Outcome: OutcomeFailedLookup}, nil
	}

	qctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	matches, err := s.searcher.TopMatches(qctx, concept.Name, concept.Kind, s.topK)
	if err != nil {
		// Never silently merge on a failed lookup
		if s.log != nil {
			s.log.Warnw("similarity lookup failed, creating new node",
				"concept", concept.Name, "kind", concept.Kind, "error", err)
		}
		return Resolution{NodeID: uuid.New(), Outcome: OutcomeFailedLookup}, nil
	}
	if len(matches) == 0 {
		return Resolution{NodeID: uuid.New(), Outcome: OutcomeCreatedNew}, nil
	}

	best := matches[0]
	if best.Score >= s.autoMergeThreshold {
		return Resolution{
			NodeID:   best.NodeID,
			Existing: true,
			Outcome:  OutcomeAutoMerged,
			Score:    best.Score,
		}, nil
	}

	// Every candidate in the ambiguous band gets a judgment chance; the
	// search returns them best first
	var ambiguous []SimilarityMatch
	for _, m := range matches {
		if m.Score >= s.judgmentThreshold {
			ambiguous = append(ambiguous, m)
		}
	}
	if len(ambiguous) > 0 {
		return Resolution{}, &pendingJudgment{concept: concept, candidates: ambiguous}
	}
	return Resolution{NodeID: uuid.New(), Outcome: OutcomeCreatedNew, Score: best.Score}, nil
}

// decideFromVerdicts resolves one concept from its per-candidate verdicts.
// The first confirmed candidate in rank order wins; unavailability only
// matters when nothing was confirmed.
func decideFromVerdicts(p pendingJudgment, verdicts []Verdict) Resolution {
	unavailable := false
	for i, verdict := range verdicts {
		switch verdict {
		case VerdictMatched:
			return Resolution{
				NodeID:   p.candidates[i].NodeID,
				Existing: true,
				Outcome:  OutcomeJudgmentConfirmed,
				Score:    p.candidates[i].Score,
			}
		case VerdictUnavailable:
			unavailable = true
		}
	}

	best := p.candidates[0].Score
	if unavailable {
		return Resolution{NodeID: uuid.New(), Outcome: OutcomeFailedJudgment, Score: best}
	}
	return Resolution{NodeID: uuid.New(), Outcome: OutcomeCreatedNew, Score: best}
}

// judgePairs wraps one judgment call so a total failure degrades to
// per-pair VerdictUnavailable instead of an error. Each call carries its
// own timeout so a slow judgment service cannot stall the batch.
func (s *ResolverService) judgePairs(ctx context.Context, pairs []JudgmentPair) []Verdict {
	if s.judge == nil {
		return unavailableVerdicts(len(pairs))
	}

	jctx, cancel := context.WithTimeout(ctx, s.judgmentTimeout)
	defer cancel()

	verdicts, err := s.judge.JudgeBatch(jctx, pairs)
	if err != nil || len(verdicts) != len(pairs) {
		if s.log != nil {
			s.log.Warnw("judgment batch failed, treating pairs as no-match",
				"pairs", len(pairs), "error", err)
		}
		return unavailableVerdicts(len(pairs))
	}
	return verdicts
}

package handlers

import (
	"net/http"

	"github.com/Njoselson/tenant-legal-tools-sub000/models"
	"github.com/Njoselson/tenant-legal-tools-sub000/repository"
	"github.com/Njoselson/tenant-legal-tools-sub000/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AnalysisHandler handles HTTP requests for case analysis
type AnalysisHandler struct {
	chainService *service.ChainService
	conceptRepo  *repository.ConceptRepository
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(chainService *service.ChainService, conceptRepo *repository.ConceptRepository) *AnalysisHandler {
	return &AnalysisHandler{
		chainService: chainService,
		conceptRepo:  conceptRepo,
	}
}

// AnalyzeRequest represents the request body for case analysis
type AnalyzeRequest struct {
	IssueIDs     []string `json:"issue_ids" binding:"required"`
	Jurisdiction string   `json:"jurisdiction"`
	Evidence     []string `json:"evidence"`
	Limit        int      `json:"limit"`
}

// VerifiedChain pairs a proof chain with its verification-adjusted strength
type VerifiedChain struct {
	models.ProofChain
	VerifiedStrength float64 `json:"verified_strength"`
}

// Analyze handles POST /api/analyze. Issues with no graph support are
// returned in unsupported_issues and never receive chains, explanations,
// or remedy rankings.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": err.Error(),
			},
		})
		return
	}

	issueIDs := make([]uuid.UUID, 0, len(req.IssueIDs))
	for _, raw := range req.IssueIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_ISSUE_ID",
					"message": "Invalid issue ID format: " + raw,
				},
			})
			return
		}
		issueIDs = append(issueIDs, id)
	}

	result, err := h.chainService.BuildProofChains(c.Request.Context(), issueIDs, req.Jurisdiction, req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ANALYSIS_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	// Rank remedies first so each chain's evidence strength feeds its
	// verification as the base estimate
	candidates := make([]service.RemedyRanking, 0, len(result.Chains))
	for _, chain := range result.Chains {
		candidates = append(candidates, service.RemedyRanking{Chain: chain})
	}
	remedies := service.RankRemedies(candidates, req.Evidence, req.Jurisdiction)

	strengthByRemedy := make(map[uuid.UUID]float64, len(remedies))
	for _, option := range remedies {
		strengthByRemedy[option.RemedyID] = option.EvidenceStrength
	}

	verified := make([]VerifiedChain, 0, len(result.Chains))
	for i := range result.Chains {
		chain := result.Chains[i]
		adjusted, err := h.chainService.VerifyChain(c.Request.Context(), &chain, strengthByRemedy[chain.RemedyID])
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VERIFICATION_FAILED",
					"message": err.Error(),
				},
			})
			return
		}
		verified = append(verified, VerifiedChain{ProofChain: chain, VerifiedStrength: adjusted})
	}

	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"chains":             verified,
		"unsupported_issues": result.Unsupported,
		"remedies":           remedies,
	})
}

// GetConcept handles GET /api/concepts/:id
func (h *AnalysisHandler) GetConcept(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_NODE_ID",
				"message": "Invalid concept node ID format",
			},
		})
		return
	}

	node, err := h.conceptRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Concept node not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"concept": node,
	})
}

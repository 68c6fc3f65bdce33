package handlers

import (
	"net/http"
	"strings"

	"github.com/Njoselson/tenant-legal-tools-sub000/models"
	"github.com/Njoselson/tenant-legal-tools-sub000/repository"
	"github.com/Njoselson/tenant-legal-tools-sub000/service"
	"github.com/Njoselson/tenant-legal-tools-sub000/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IngestHandler handles HTTP requests for document ingestion
type IngestHandler struct {
	ingestService *service.IngestService
	conceptRepo   *repository.ConceptRepository
	documentRepo  *repository.DocumentRepository
	documents     storage.DocumentStore
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(
	ingestService *service.IngestService,
	conceptRepo *repository.ConceptRepository,
	documentRepo *repository.DocumentRepository,
	documents storage.DocumentStore,
) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
		conceptRepo:   conceptRepo,
		documentRepo:  documentRepo,
		documents:     documents,
	}
}

// IngestRequest represents the request body for ingesting one document's
// extraction output
type IngestRequest struct {
	Concepts  []models.ExtractedConcept  `json:"concepts" binding:"required"`
	Relations []models.ExtractedRelation `json:"relations"`
}

// Ingest handles POST /api/ingest
func (h *IngestHandler) Ingest(c *gin.Context) {
	var req IngestRequest
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

	for _, concept := range req.Concepts {
		if !concept.Kind.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_NODE_KIND",
					"message": "unknown node kind: " + string(concept.Kind),
				},
			})
			return
		}
	}
	for _, rel := range req.Relations {
		if !rel.Type.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "INVALID_RELATION_TYPE",
					"message": "unknown relation type: " + string(rel.Type),
				},
			})
			return
		}
	}

	report, err := h.ingestService.ResolveAndMerge(c.Request.Context(), service.IngestRequest{
		Concepts:  req.Concepts,
		Relations: req.Relations,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INGEST_FAILED",
				"message": err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"report":  report,
	})
}

// UploadDocumentRequest represents the request body for archiving a raw
// source document
type UploadDocumentRequest struct {
	Title      string `json:"title" binding:"required"`
	SourceType string `json:"source_type" binding:"required"`
	Text       string `json:"text" binding:"required"`
}

// UploadDocument handles POST /api/documents/upload
func (h *IngestHandler) UploadDocument(c *gin.Context) {
	var req UploadDocumentRequest
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

	doc := &models.SourceDocument{
		ID:         uuid.New(),
		Title:      req.Title,
		SourceType: req.SourceType,
	}

	storagePath, err := h.documents.Save(c.Request.Context(), doc.ID, doc.Title, strings.NewReader(req.Text))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STORAGE_FAILED",
				"message": "failed to archive document",
			},
		})
		return
	}
	doc.StoragePath = storagePath

	if err := h.documentRepo.Create(c.Request.Context(), doc); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DB_ERROR",
				"message": "failed to record document",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"document": doc,
	})
}

// LinkChunkRequest represents the request body for linking a content chunk
// to a concept node
type LinkChunkRequest struct {
	ChunkID string `json:"chunk_id" binding:"required"`
}

// LinkChunk handles POST /api/concepts/:id/chunks
func (h *IngestHandler) LinkChunk(c *gin.Context) {
	nodeID, err := uuid.Parse(c.Param("id"))
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

	var req LinkChunkRequest
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

	linked, err := h.conceptRepo.LinkChunk(c.Request.Context(), nodeID, req.ChunkID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DB_ERROR",
				"message": "failed to link chunk",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"linked":  linked,
	})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-app/inkwell/internal/documents"
	"github.com/inkwell-app/inkwell/internal/models"
	log "github.com/sirupsen/logrus"
)

// DocumentHandler serves document and knowledge endpoints for the signed-in owner.
type DocumentHandler struct {
	store *documents.Store
}

// NewDocumentHandler constructs a DocumentHandler.
func NewDocumentHandler(store *documents.Store) *DocumentHandler {
	return &DocumentHandler{store: store}
}

type createDocumentRequest struct {
	Title string `json:"title"`
}

type updateDocumentRequest struct {
	Title          *string `json:"title"`
	Content        *string `json:"content"`
	AIInstructions *string `json:"aiInstructions"`
}

type knowledgeRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// Create creates an empty document.
func (h *DocumentHandler) Create(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var body createDocumentRequest
	if c.Request.ContentLength != 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	doc, errCreate := h.store.Create(c.Request.Context(), identity.UserID(), body.Title)
	if errCreate != nil {
		log.WithError(errCreate).Error("documents: create failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create document failed"})
		return
	}
	c.JSON(http.StatusCreated, documentJSON(doc))
}

// List returns the owner's documents, newest first, optionally filtered by ?search=.
func (h *DocumentHandler) List(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	docs, errList := h.store.List(c.Request.Context(), identity.UserID(), c.Query("search"))
	if errList != nil {
		log.WithError(errList).Error("documents: list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list documents failed"})
		return
	}
	out := make([]gin.H, 0, len(docs))
	for _, doc := range docs {
		out = append(out, documentJSON(doc))
	}
	c.JSON(http.StatusOK, gin.H{"documents": out})
}

// Get returns one document.
func (h *DocumentHandler) Get(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	doc, errGet := h.store.Get(c.Request.Context(), identity.UserID(), c.Param("id"))
	if errGet != nil {
		writeStoreError(c, "get document", errGet)
		return
	}
	c.JSON(http.StatusOK, documentJSON(doc))
}

// Update saves title, content, or instruction changes.
func (h *DocumentHandler) Update(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var body updateDocumentRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	doc, errUpdate := h.store.Update(c.Request.Context(), identity.UserID(), c.Param("id"), documents.DocumentUpdate{
		Title:          body.Title,
		Content:        body.Content,
		AIInstructions: body.AIInstructions,
	})
	if errUpdate != nil {
		writeStoreError(c, "update document", errUpdate)
		return
	}
	c.JSON(http.StatusOK, documentJSON(doc))
}

// Delete removes a document and its knowledge.
func (h *DocumentHandler) Delete(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	if errRemove := h.store.Remove(c.Request.Context(), identity.UserID(), c.Param("id")); errRemove != nil {
		writeStoreError(c, "delete document", errRemove)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AddKnowledge attaches a snippet to a document.
func (h *DocumentHandler) AddKnowledge(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var body knowledgeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.Title == nil || body.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and content are required"})
		return
	}
	item, errAdd := h.store.AddKnowledge(c.Request.Context(), identity.UserID(), c.Param("id"), *body.Title, *body.Content)
	if errAdd != nil {
		writeStoreError(c, "add knowledge", errAdd)
		return
	}
	c.JSON(http.StatusCreated, knowledgeJSON(item))
}

// ListKnowledge returns a document's snippets, newest first.
func (h *DocumentHandler) ListKnowledge(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	items, errList := h.store.ListKnowledge(c.Request.Context(), identity.UserID(), c.Param("id"))
	if errList != nil {
		writeStoreError(c, "list knowledge", errList)
		return
	}
	out := make([]gin.H, 0, len(items))
	for _, item := range items {
		out = append(out, knowledgeJSON(item))
	}
	c.JSON(http.StatusOK, gin.H{"knowledge": out})
}

// UpdateKnowledge edits a snippet.
func (h *DocumentHandler) UpdateKnowledge(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var body knowledgeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	item, errUpdate := h.store.UpdateKnowledge(c.Request.Context(), identity.UserID(), c.Param("id"), documents.KnowledgeUpdate{
		Title:   body.Title,
		Content: body.Content,
	})
	if errUpdate != nil {
		writeStoreError(c, "update knowledge", errUpdate)
		return
	}
	c.JSON(http.StatusOK, knowledgeJSON(item))
}

// DeleteKnowledge removes a snippet.
func (h *DocumentHandler) DeleteKnowledge(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	if errRemove := h.store.RemoveKnowledge(c.Request.Context(), identity.UserID(), c.Param("id")); errRemove != nil {
		writeStoreError(c, "delete knowledge", errRemove)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func writeStoreError(c *gin.Context, op string, err error) {
	if errors.Is(err, documents.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	log.WithError(err).Errorf("documents: %s failed", op)
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
}

func documentJSON(doc models.Document) gin.H {
	return gin.H{
		"id":             doc.ID,
		"userId":         doc.UserID,
		"title":          doc.Title,
		"content":        doc.Content,
		"aiInstructions": doc.AIInstructions,
		"createdAt":      doc.CreatedAt,
		"updatedAt":      doc.UpdatedAt,
	}
}

func knowledgeJSON(item models.Knowledge) gin.H {
	return gin.H{
		"id":         item.ID,
		"documentId": item.DocumentID,
		"title":      item.Title,
		"content":    item.Content,
		"createdAt":  item.CreatedAt,
	}
}

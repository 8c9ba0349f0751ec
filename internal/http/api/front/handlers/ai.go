package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-app/inkwell/internal/assistant"
	"github.com/inkwell-app/inkwell/internal/documents"
	"github.com/inkwell-app/inkwell/internal/prompt"
	"github.com/inkwell-app/inkwell/internal/session"
	log "github.com/sirupsen/logrus"
)

// MessageNotConfigured is returned when the completion API key is missing.
const MessageNotConfigured = "AI is not configured. Please contact support."

// AIHandler serves chat and generate endpoints.
type AIHandler struct {
	assistant *assistant.Service
	store     *documents.Store
}

// NewAIHandler constructs an AIHandler.
func NewAIHandler(svc *assistant.Service, store *documents.Store) *AIHandler {
	return &AIHandler{assistant: svc, store: store}
}

type knowledgeContextItem struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Message          string                 `json:"message"`
	DocumentID       string                 `json:"documentId"`
	DocumentContent  string                 `json:"documentContent"`
	KnowledgeContext []knowledgeContextItem `json:"knowledgeContext"`
	ChatHistory      []chatTurn             `json:"chatHistory"`
	SelectedContext  []string               `json:"selectedContext"`
	AIInstructions   *string                `json:"aiInstructions"`
}

type generateRequest struct {
	Prompt           string                 `json:"prompt"`
	DocumentID       string                 `json:"documentId"`
	DocumentContent  string                 `json:"documentContent"`
	KnowledgeContext []knowledgeContextItem `json:"knowledgeContext"`
	InsertionPoint   string                 `json:"insertionPoint"`
	AIInstructions   *string                `json:"aiInstructions"`
}

// Chat answers a message about the current document.
func (h *AIHandler) Chat(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var body chatRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	promptCtx, ok := h.buildContext(c, identity, body.DocumentID, body.DocumentContent, body.KnowledgeContext, body.AIInstructions)
	if !ok {
		return
	}
	promptCtx.SelectedContext = body.SelectedContext

	history := make([]prompt.Turn, 0, len(body.ChatHistory))
	for _, turn := range body.ChatHistory {
		history = append(history, prompt.Turn{Role: turn.Role, Content: turn.Content})
	}
	result, errChat := h.assistant.Chat(c.Request.Context(), assistant.ChatInput{
		UserID:  identity.UserID(),
		Message: body.Message,
		Context: promptCtx,
		History: history,
	})
	h.respond(c, result, errChat)
}

// Generate produces insertable text for the current document.
func (h *AIHandler) Generate(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var body generateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	promptCtx, ok := h.buildContext(c, identity, body.DocumentID, body.DocumentContent, body.KnowledgeContext, body.AIInstructions)
	if !ok {
		return
	}
	promptCtx.InsertionPoint = body.InsertionPoint

	result, errGenerate := h.assistant.GenerateText(c.Request.Context(), assistant.GenerateInput{
		UserID:  identity.UserID(),
		Prompt:  body.Prompt,
		Context: promptCtx,
	})
	h.respond(c, result, errGenerate)
}

// buildContext merges request fields with the stored document when documentId is given.
// Request values win; stored content, knowledge, and instructions fill what the request omits.
func (h *AIHandler) buildContext(c *gin.Context, identity session.Identity, documentID, content string, knowledge []knowledgeContextItem, instructions *string) (prompt.Context, bool) {
	promptCtx := prompt.Context{DocumentContent: content}
	for _, item := range knowledge {
		promptCtx.Knowledge = append(promptCtx.Knowledge, prompt.KnowledgeItem{Title: item.Title, Content: item.Content})
	}
	if identity.User.AIGlobalInstructions != nil {
		promptCtx.Instructions.Global = *identity.User.AIGlobalInstructions
	}
	if instructions != nil {
		promptCtx.Instructions.Document = *instructions
	}

	documentID = strings.TrimSpace(documentID)
	if documentID == "" || h.store == nil {
		return promptCtx, true
	}
	ctx := c.Request.Context()
	doc, errGet := h.store.Get(ctx, identity.UserID(), documentID)
	if errGet != nil {
		writeStoreError(c, "load document", errGet)
		return prompt.Context{}, false
	}
	if promptCtx.DocumentContent == "" {
		promptCtx.DocumentContent = doc.Content
	}
	if instructions == nil && doc.AIInstructions != nil {
		promptCtx.Instructions.Document = *doc.AIInstructions
	}
	if knowledge == nil {
		items, errList := h.store.ListKnowledge(ctx, identity.UserID(), documentID)
		if errList != nil {
			writeStoreError(c, "load knowledge", errList)
			return prompt.Context{}, false
		}
		for _, item := range items {
			promptCtx.Knowledge = append(promptCtx.Knowledge, prompt.KnowledgeItem{Title: item.Title, Content: item.Content})
		}
	}
	return promptCtx, true
}

func (h *AIHandler) respond(c *gin.Context, result assistant.Result, err error) {
	if err != nil {
		if errors.Is(err, assistant.ErrMissingCredential) {
			log.WithError(err).Error("ai: request rejected")
			c.JSON(http.StatusServiceUnavailable, gin.H{"content": "", "success": false, "error": MessageNotConfigured})
			return
		}
		if writeValidation(c, err) {
			return
		}
		log.WithError(err).Error("ai: request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"content": "", "success": false, "error": assistant.MessageGeneric})
		return
	}
	c.JSON(http.StatusOK, result)
}

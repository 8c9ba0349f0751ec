// Package documents stores user documents and their knowledge snippets with owner checks on every access.
package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/models"
	"gorm.io/gorm"
)

// DefaultTitle is used when a document is created without a title.
const DefaultTitle = "Untitled Document"

// ErrNotFound covers missing rows and rows owned by someone else.
var ErrNotFound = errors.New("documents: not found")

// DocumentUpdate carries optional document changes. Nil fields are left as is.
type DocumentUpdate struct {
	Title          *string
	Content        *string
	AIInstructions *string
}

// KnowledgeUpdate carries optional knowledge changes.
type KnowledgeUpdate struct {
	Title   *string
	Content *string
}

// Store is the document and knowledge repository.
type Store struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// NewStore constructs a Store.
func NewStore(conn *gorm.DB, nowFn func() time.Time) *Store {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Store{db: conn, nowFn: nowFn}
}

// Create inserts an empty document for the owner.
func (s *Store) Create(ctx context.Context, userID, title string) (models.Document, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle
	}
	now := s.nowFn().UTC()
	doc := models.Document{
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errCreate := s.db.WithContext(ctx).Create(&doc).Error; errCreate != nil {
		return models.Document{}, fmt.Errorf("documents: create: %w", errCreate)
	}
	return doc, nil
}

// List returns the owner's documents, newest first. A non-empty search filters by title.
func (s *Store) List(ctx context.Context, userID, search string) ([]models.Document, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if search = strings.TrimSpace(search); search != "" {
		clause, pattern := db.ContainsFold(s.db, "title", search)
		q = q.Where(clause, pattern)
	}
	var docs []models.Document
	if errFind := q.Order("created_at DESC").Order("id DESC").Find(&docs).Error; errFind != nil {
		return nil, fmt.Errorf("documents: list: %w", errFind)
	}
	return docs, nil
}

// Get returns one of the owner's documents.
func (s *Store) Get(ctx context.Context, userID, documentID string) (models.Document, error) {
	return s.owned(s.db.WithContext(ctx), userID, documentID)
}

// Update applies title, content, and instruction changes. Blank instructions clear the override.
func (s *Store) Update(ctx context.Context, userID, documentID string, in DocumentUpdate) (models.Document, error) {
	conn := s.db.WithContext(ctx)
	if _, errOwned := s.owned(conn, userID, documentID); errOwned != nil {
		return models.Document{}, errOwned
	}
	updates := map[string]any{"updated_at": s.nowFn().UTC()}
	if in.Title != nil {
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		updates["content"] = *in.Content
	}
	if in.AIInstructions != nil {
		var value *string
		if trimmed := strings.TrimSpace(*in.AIInstructions); trimmed != "" {
			value = &trimmed
		}
		updates["ai_instructions"] = value
	}
	if errUpdate := conn.Model(&models.Document{}).Where("id = ?", documentID).Updates(updates).Error; errUpdate != nil {
		return models.Document{}, fmt.Errorf("documents: update: %w", errUpdate)
	}
	return s.owned(conn, userID, documentID)
}

// Remove deletes the document and all of its knowledge in one transaction.
func (s *Store) Remove(ctx context.Context, userID, documentID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, errOwned := s.owned(tx, userID, documentID); errOwned != nil {
			return errOwned
		}
		if errKnowledge := tx.Where("document_id = ?", documentID).Delete(&models.Knowledge{}).Error; errKnowledge != nil {
			return fmt.Errorf("documents: delete knowledge: %w", errKnowledge)
		}
		if errDoc := tx.Where("id = ?", documentID).Delete(&models.Document{}).Error; errDoc != nil {
			return fmt.Errorf("documents: delete document: %w", errDoc)
		}
		return nil
	})
}

// AddKnowledge attaches a snippet to one of the owner's documents.
func (s *Store) AddKnowledge(ctx context.Context, userID, documentID, title, content string) (models.Knowledge, error) {
	conn := s.db.WithContext(ctx)
	if _, errOwned := s.owned(conn, userID, documentID); errOwned != nil {
		return models.Knowledge{}, errOwned
	}
	item := models.Knowledge{
		DocumentID: documentID,
		Title:      strings.TrimSpace(title),
		Content:    content,
		CreatedAt:  s.nowFn().UTC(),
	}
	if errCreate := conn.Create(&item).Error; errCreate != nil {
		return models.Knowledge{}, fmt.Errorf("documents: add knowledge: %w", errCreate)
	}
	return item, nil
}

// ListKnowledge returns a document's snippets, newest first.
func (s *Store) ListKnowledge(ctx context.Context, userID, documentID string) ([]models.Knowledge, error) {
	conn := s.db.WithContext(ctx)
	if _, errOwned := s.owned(conn, userID, documentID); errOwned != nil {
		return nil, errOwned
	}
	var items []models.Knowledge
	if errFind := conn.Where("document_id = ?", documentID).
		Order("created_at DESC").Order("id DESC").
		Find(&items).Error; errFind != nil {
		return nil, fmt.Errorf("documents: list knowledge: %w", errFind)
	}
	return items, nil
}

// UpdateKnowledge edits a snippet after resolving its document's owner.
func (s *Store) UpdateKnowledge(ctx context.Context, userID, knowledgeID string, in KnowledgeUpdate) (models.Knowledge, error) {
	conn := s.db.WithContext(ctx)
	if _, errOwned := s.ownedKnowledge(conn, userID, knowledgeID); errOwned != nil {
		return models.Knowledge{}, errOwned
	}
	updates := map[string]any{}
	if in.Title != nil {
		updates["title"] = strings.TrimSpace(*in.Title)
	}
	if in.Content != nil {
		updates["content"] = *in.Content
	}
	if len(updates) > 0 {
		if errUpdate := conn.Model(&models.Knowledge{}).Where("id = ?", knowledgeID).Updates(updates).Error; errUpdate != nil {
			return models.Knowledge{}, fmt.Errorf("documents: update knowledge: %w", errUpdate)
		}
	}
	return s.ownedKnowledge(conn, userID, knowledgeID)
}

// RemoveKnowledge deletes a snippet after resolving its document's owner.
func (s *Store) RemoveKnowledge(ctx context.Context, userID, knowledgeID string) error {
	conn := s.db.WithContext(ctx)
	if _, errOwned := s.ownedKnowledge(conn, userID, knowledgeID); errOwned != nil {
		return errOwned
	}
	if errDelete := conn.Where("id = ?", knowledgeID).Delete(&models.Knowledge{}).Error; errDelete != nil {
		return fmt.Errorf("documents: remove knowledge: %w", errDelete)
	}
	return nil
}

func (s *Store) owned(conn *gorm.DB, userID, documentID string) (models.Document, error) {
	var doc models.Document
	errFind := conn.Where("id = ? AND user_id = ?", strings.TrimSpace(documentID), userID).Take(&doc).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.Document{}, ErrNotFound
	}
	if errFind != nil {
		return models.Document{}, fmt.Errorf("documents: load document: %w", errFind)
	}
	return doc, nil
}

func (s *Store) ownedKnowledge(conn *gorm.DB, userID, knowledgeID string) (models.Knowledge, error) {
	var item models.Knowledge
	errFind := conn.Where("id = ?", strings.TrimSpace(knowledgeID)).Take(&item).Error
	if errors.Is(errFind, gorm.ErrRecordNotFound) {
		return models.Knowledge{}, ErrNotFound
	}
	if errFind != nil {
		return models.Knowledge{}, fmt.Errorf("documents: load knowledge: %w", errFind)
	}
	if _, errOwned := s.owned(conn, userID, item.DocumentID); errOwned != nil {
		return models.Knowledge{}, errOwned
	}
	return item, nil
}

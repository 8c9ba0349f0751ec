package documents

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/inkwell-app/inkwell/internal/db"
	"github.com/inkwell-app/inkwell/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type tickingClock struct {
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func newStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "documents.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	clock := &tickingClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewStore(conn, clock.Now), conn
}

func strPtr(s string) *string { return &s }

func TestCreateDefaultsTitle(t *testing.T) {
	store, _ := newStore(t)
	doc, err := store.Create(context.Background(), "u1", "   ")
	require.NoError(t, err)
	assert.Equal(t, DefaultTitle, doc.Title)
	assert.Equal(t, "", doc.Content)
	assert.NotEmpty(t, doc.ID)
}

func TestListNewestFirstAndScopedToOwner(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	first, err := store.Create(ctx, "u1", "First draft")
	require.NoError(t, err)
	second, err := store.Create(ctx, "u1", "Second 100% draft")
	require.NoError(t, err)
	_, err = store.Create(ctx, "u2", "Not mine")
	require.NoError(t, err)

	docs, err := store.List(ctx, "u1", "")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, second.ID, docs[0].ID)
	assert.Equal(t, first.ID, docs[1].ID)

	docs, err = store.List(ctx, "u1", "100%")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, second.ID, docs[0].ID)

	docs, err = store.List(ctx, "u1", "FIRST")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, first.ID, docs[0].ID)
}

func TestForeignDocumentIsNotFound(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	doc, err := store.Create(ctx, "owner", "Private")
	require.NoError(t, err)

	_, err = store.Get(ctx, "intruder", doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Update(ctx, "intruder", doc.ID, DocumentUpdate{Title: strPtr("Hacked")})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Remove(ctx, "intruder", doc.ID), ErrNotFound)
	_, err = store.AddKnowledge(ctx, "intruder", doc.ID, "t", "c")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := store.Get(ctx, "owner", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Private", got.Title)
}

func TestUpdateDocument(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	doc, err := store.Create(ctx, "u1", "")
	require.NoError(t, err)

	updated, err := store.Update(ctx, "u1", doc.ID, DocumentUpdate{
		Title:          strPtr("Paper"),
		Content:        strPtr("<p>Hello</p>"),
		AIInstructions: strPtr(" Cite sources. "),
	})
	require.NoError(t, err)
	assert.Equal(t, "Paper", updated.Title)
	assert.Equal(t, "<p>Hello</p>", updated.Content)
	require.NotNil(t, updated.AIInstructions)
	assert.Equal(t, "Cite sources.", *updated.AIInstructions)
	assert.True(t, updated.UpdatedAt.After(doc.UpdatedAt))

	updated, err = store.Update(ctx, "u1", doc.ID, DocumentUpdate{AIInstructions: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, updated.AIInstructions)
	assert.Equal(t, "Paper", updated.Title)
}

func TestRemoveCascadesKnowledge(t *testing.T) {
	store, conn := newStore(t)
	ctx := context.Background()
	doc, err := store.Create(ctx, "u1", "Doomed")
	require.NoError(t, err)
	other, err := store.Create(ctx, "u1", "Survivor")
	require.NoError(t, err)
	for _, title := range []string{"Ref1", "Ref2"} {
		_, err = store.AddKnowledge(ctx, "u1", doc.ID, title, "body")
		require.NoError(t, err)
	}
	kept, err := store.AddKnowledge(ctx, "u1", other.ID, "Keep", "body")
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, "u1", doc.ID))

	var orphans int64
	require.NoError(t, conn.Model(&models.Knowledge{}).Where("document_id = ?", doc.ID).Count(&orphans).Error)
	assert.Zero(t, orphans)
	_, err = store.Get(ctx, "u1", doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	items, err := store.ListKnowledge(ctx, "u1", other.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, kept.ID, items[0].ID)
}

func TestKnowledgeLifecycle(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()
	doc, err := store.Create(ctx, "u1", "Doc")
	require.NoError(t, err)

	ref1, err := store.AddKnowledge(ctx, "u1", doc.ID, "Ref1", "one")
	require.NoError(t, err)
	ref2, err := store.AddKnowledge(ctx, "u1", doc.ID, "Ref2", "two")
	require.NoError(t, err)

	items, err := store.ListKnowledge(ctx, "u1", doc.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, ref2.ID, items[0].ID)
	assert.Equal(t, ref1.ID, items[1].ID)

	updated, err := store.UpdateKnowledge(ctx, "u1", ref1.ID, KnowledgeUpdate{Content: strPtr("uno")})
	require.NoError(t, err)
	assert.Equal(t, "Ref1", updated.Title)
	assert.Equal(t, "uno", updated.Content)

	_, err = store.UpdateKnowledge(ctx, "u2", ref1.ID, KnowledgeUpdate{Title: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.RemoveKnowledge(ctx, "u2", ref1.ID), ErrNotFound)

	require.NoError(t, store.RemoveKnowledge(ctx, "u1", ref1.ID))
	assert.ErrorIs(t, store.RemoveKnowledge(ctx, "u1", ref1.ID), ErrNotFound)

	items, err = store.ListKnowledge(ctx, "u1", doc.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
	"github.com/reverie-dev/reverie/pkg/repository/firestore"
)

func newFirestoreRepository(t *testing.T) *firestore.Firestore {
	t.Helper()

	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID not set")
	}

	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		t.Skip("TEST_FIRESTORE_DATABASE_ID not set")
	}

	ctx := context.Background()
	prefix := fmt.Sprintf("test-%d-", time.Now().UnixNano())
	repo, err := firestore.New(ctx, projectID, databaseID, firestore.WithCollectionPrefix(prefix))
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		gt.NoError(t, repo.Close())
	})
	return repo
}

func TestFirestoreConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newFirestoreRepository(t)

	conv, err := repo.Conversation().Create(ctx, "user-1", "morning pages", "thread-1")
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		_ = repo.Conversation().Delete(ctx, "user-1", conv.ID)
	})

	got, err := repo.Conversation().Get(ctx, "user-1", conv.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, got.Title).Equal("morning pages")
	gt.Value(t, got.ThreadID).Equal(types.ThreadID("thread-1"))
	gt.Value(t, got.Status).Equal(types.ConversationStatusActive)

	_, err = repo.Conversation().Get(ctx, "user-2", conv.ID)
	gt.Value(t, errors.Is(err, types.ErrNotFound)).Equal(true)

	gt.NoError(t, repo.Conversation().Archive(ctx, "user-1", conv.ID))
	got, err = repo.Conversation().Get(ctx, "user-1", conv.ID)
	gt.NoError(t, err).Required()
	gt.Value(t, got.Status).Equal(types.ConversationStatusArchived)
}

func TestFirestoreMessagesRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newFirestoreRepository(t)

	conv, err := repo.Conversation().Create(ctx, "user-1", "journal", "thread-1")
	gt.NoError(t, err).Required()
	t.Cleanup(func() {
		_ = repo.Conversation().Delete(ctx, "user-1", conv.ID)
	})

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 4; i++ {
		msg := model.NewMessage(conv.ID, types.RoleUser, fmt.Sprintf("message %d", i), nil)
		msg.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_, err := repo.Message().Put(ctx, msg)
		gt.NoError(t, err).Required()
	}

	recent, err := repo.Message().Recent(ctx, conv.ID, 3)
	gt.NoError(t, err).Required()
	gt.Array(t, recent).Length(3).Required()
	gt.Value(t, recent[0].Content).Equal("message 1")
	gt.Value(t, recent[2].Content).Equal("message 3")

	page1, cursor, err := repo.Message().List(ctx, "user-1", conv.ID, 3, "")
	gt.NoError(t, err).Required()
	gt.Array(t, page1).Length(3)
	gt.Value(t, page1[0].Content).Equal("message 3")
	gt.Value(t, cursor).Equal(string(page1[2].ID))

	page2, cursor, err := repo.Message().List(ctx, "user-1", conv.ID, 3, cursor)
	gt.NoError(t, err).Required()
	gt.Array(t, page2).Length(1)
	gt.Value(t, cursor).Equal("")

	_, _, err = repo.Message().List(ctx, "user-2", conv.ID, 10, "")
	gt.Value(t, errors.Is(err, types.ErrNotFound)).Equal(true)
}

func TestFirestoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	repo := newFirestoreRepository(t)

	conv, err := repo.Conversation().Create(ctx, "user-1", "journal", "thread-1")
	gt.NoError(t, err).Required()

	_, err = repo.Message().Put(ctx, model.NewMessage(conv.ID, types.RoleUser, "hello", nil))
	gt.NoError(t, err).Required()

	gt.NoError(t, repo.Conversation().Delete(ctx, "user-1", conv.ID))

	_, err = repo.Conversation().Get(ctx, "user-1", conv.ID)
	gt.Value(t, errors.Is(err, types.ErrNotFound)).Equal(true)
}

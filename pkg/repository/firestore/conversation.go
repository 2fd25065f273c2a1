package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/m-mizutani/goerr/v2"
	"github.com/reverie-dev/reverie/pkg/domain/interfaces"
	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const conversationsCollection = "conversations"

type conversationRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.ConversationRepository = &conversationRepository{}

func newConversationRepository(client *firestore.Client) *conversationRepository {
	return &conversationRepository{client: client}
}

// conversationDoc is the Firestore document layout for a conversation
type conversationDoc struct {
	ID        string
	UserID    string
	ThreadID  string
	Title     string
	Status    string
	CreatedAt time.Time
}

func (r *conversationRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + conversationsCollection)
}

func (r *conversationRepository) Create(ctx context.Context, userID, title string, threadID types.ThreadID) (*model.Conversation, error) {
	if userID == "" {
		return nil, goerr.New("userID is required")
	}
	if threadID == "" {
		return nil, goerr.New("threadID is required")
	}

	conv := model.NewConversation(userID, title, threadID)
	doc := &conversationDoc{
		ID:        string(conv.ID),
		UserID:    conv.UserID,
		ThreadID:  string(conv.ThreadID),
		Title:     conv.Title,
		Status:    conv.Status.String(),
		CreatedAt: conv.CreatedAt,
	}

	if _, err := r.collection().Doc(doc.ID).Set(ctx, doc); err != nil {
		return nil, goerr.Wrap(err, "failed to create conversation",
			goerr.V("conversationID", conv.ID))
	}
	return conv, nil
}

// getDoc fetches a conversation document and verifies ownership
func (r *conversationRepository) getDoc(ctx context.Context, userID string, id types.ConversationID) (*conversationDoc, error) {
	snap, err := r.collection().Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(types.ErrNotFound, "conversation not found",
				goerr.V("conversationID", id))
		}
		return nil, goerr.Wrap(err, "failed to get conversation",
			goerr.V("conversationID", id))
	}

	var doc conversationDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal conversation",
			goerr.V("conversationID", id))
	}
	if doc.UserID != userID {
		return nil, goerr.Wrap(types.ErrNotFound, "conversation not found",
			goerr.V("conversationID", id))
	}
	return &doc, nil
}

func (doc *conversationDoc) toModel() *model.Conversation {
	return &model.Conversation{
		ID:        types.ConversationID(doc.ID),
		UserID:    doc.UserID,
		ThreadID:  types.ThreadID(doc.ThreadID),
		Title:     doc.Title,
		Status:    types.ConversationStatus(doc.Status),
		CreatedAt: doc.CreatedAt,
	}
}

func (r *conversationRepository) Get(ctx context.Context, userID string, id types.ConversationID) (*model.Conversation, error) {
	doc, err := r.getDoc(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return doc.toModel(), nil
}

func (r *conversationRepository) List(ctx context.Context, userID string, stat types.ConversationStatus, limit int, cursor string) ([]*model.ConversationSummary, string, error) {
	if limit <= 0 {
		limit = 20
	}

	query := r.collection().Where("UserID", "==", userID)
	if stat != "" {
		query = query.Where("Status", "==", stat.String())
	}
	query = query.OrderBy("CreatedAt", firestore.Desc).Limit(limit + 1)

	if cursor != "" {
		cursorSnap, err := r.collection().Doc(cursor).Get(ctx)
		if err != nil {
			return nil, "", goerr.Wrap(err, "failed to get cursor document",
				goerr.V("cursor", cursor))
		}
		query = query.StartAfter(cursorSnap)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var summaries []*model.ConversationSummary
	var hasMore bool

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, "", goerr.Wrap(err, "failed to iterate conversations")
		}

		if len(summaries) >= limit {
			hasMore = true
			break
		}

		var doc conversationDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, "", goerr.Wrap(err, "failed to unmarshal conversation",
				goerr.V("doc_id", snap.Ref.ID))
		}

		count, lastAt, err := r.messageStats(ctx, doc.ID)
		if err != nil {
			return nil, "", err
		}

		summaries = append(summaries, &model.ConversationSummary{
			ID:            types.ConversationID(doc.ID),
			Title:         doc.Title,
			Status:        types.ConversationStatus(doc.Status),
			CreatedAt:     doc.CreatedAt,
			MessageCount:  count,
			LastMessageAt: lastAt,
		})
	}

	var nextCursor string
	if hasMore && len(summaries) > 0 {
		nextCursor = string(summaries[len(summaries)-1].ID)
	}

	return summaries, nextCursor, nil
}

// messageStats derives MessageCount and LastMessageAt for a summary row
func (r *conversationRepository) messageStats(ctx context.Context, conversationID string) (int, *time.Time, error) {
	messages := r.collection().Doc(conversationID).Collection(messagesCollection)

	agg, err := messages.NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, nil, goerr.Wrap(err, "failed to count messages",
			goerr.V("conversationID", conversationID))
	}

	count := 0
	if v, ok := agg["count"]; ok {
		if pb, ok := v.(*firestorepb.Value); ok {
			count = int(pb.GetIntegerValue())
		}
	}
	if count == 0 {
		return 0, nil, nil
	}

	iter := messages.OrderBy("CreatedAt", firestore.Desc).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return count, nil, nil
	}
	if err != nil {
		return 0, nil, goerr.Wrap(err, "failed to get last message",
			goerr.V("conversationID", conversationID))
	}

	var doc messageDoc
	if err := snap.DataTo(&doc); err != nil {
		return 0, nil, goerr.Wrap(err, "failed to unmarshal last message",
			goerr.V("conversationID", conversationID))
	}
	return count, &doc.CreatedAt, nil
}

func (r *conversationRepository) Archive(ctx context.Context, userID string, id types.ConversationID) error {
	if _, err := r.getDoc(ctx, userID, id); err != nil {
		return err
	}

	_, err := r.collection().Doc(string(id)).Update(ctx, []firestore.Update{
		{Path: "Status", Value: types.ConversationStatusArchived.String()},
	})
	if err != nil {
		return goerr.Wrap(err, "failed to archive conversation",
			goerr.V("conversationID", id))
	}
	return nil
}

func (r *conversationRepository) Delete(ctx context.Context, userID string, id types.ConversationID) error {
	if _, err := r.getDoc(ctx, userID, id); err != nil {
		return err
	}

	// Cascade: remove messages in batches, then the conversation doc
	messages := r.collection().Doc(string(id)).Collection(messagesCollection)
	const batchSize = 500
	for {
		iter := messages.Limit(batchSize).Documents(ctx)
		bw := r.client.BulkWriter(ctx)

		deleted := 0
		for {
			snap, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				iter.Stop()
				return goerr.Wrap(err, "failed to iterate messages for deletion")
			}
			if _, err := bw.Delete(snap.Ref); err != nil {
				iter.Stop()
				return goerr.Wrap(err, "failed to queue message deletion")
			}
			deleted++
		}
		iter.Stop()
		bw.End()

		if deleted < batchSize {
			break
		}
	}

	if _, err := r.collection().Doc(string(id)).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete conversation",
			goerr.V("conversationID", id))
	}
	return nil
}

package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/reverie-dev/reverie/pkg/domain/interfaces"
	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
	"google.golang.org/api/iterator"
)

const messagesCollection = "messages"

type messageRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.MessageRepository = &messageRepository{}

func newMessageRepository(client *firestore.Client) *messageRepository {
	return &messageRepository{client: client}
}

// messageDoc is the Firestore document layout for a message
type messageDoc struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	Metadata       map[string]any
	CreatedAt      time.Time
}

func (r *messageRepository) collection(conversationID types.ConversationID) *firestore.CollectionRef {
	return r.client.
		Collection(r.collectionPrefix + conversationsCollection).
		Doc(string(conversationID)).
		Collection(messagesCollection)
}

func (r *messageRepository) Put(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if msg == nil {
		return nil, goerr.New("message is nil")
	}
	if msg.ConversationID == "" {
		return nil, goerr.New("conversationID is required")
	}

	doc := &messageDoc{
		ID:             string(msg.ID),
		ConversationID: string(msg.ConversationID),
		Role:           msg.Role.String(),
		Content:        msg.Content,
		Metadata:       msg.Metadata,
		CreatedAt:      msg.CreatedAt,
	}

	if _, err := r.collection(msg.ConversationID).Doc(doc.ID).Set(ctx, doc); err != nil {
		return nil, goerr.Wrap(err, "failed to save message",
			goerr.V("conversationID", msg.ConversationID),
			goerr.V("messageID", msg.ID))
	}
	return msg.Clone(), nil
}

func (doc *messageDoc) toModel() *model.Message {
	return &model.Message{
		ID:             types.MessageID(doc.ID),
		ConversationID: types.ConversationID(doc.ConversationID),
		Role:           types.Role(doc.Role),
		Content:        doc.Content,
		Metadata:       doc.Metadata,
		CreatedAt:      doc.CreatedAt,
	}
}

func (r *messageRepository) List(ctx context.Context, userID string, conversationID types.ConversationID, limit int, cursor string) ([]*model.Message, string, error) {
	// Ownership check before touching the message log
	convRepo := &conversationRepository{client: r.client, collectionPrefix: r.collectionPrefix}
	if _, err := convRepo.getDoc(ctx, userID, conversationID); err != nil {
		return nil, "", err
	}

	if limit <= 0 {
		limit = 50
	}

	query := r.collection(conversationID).
		OrderBy("CreatedAt", firestore.Desc).
		Limit(limit + 1)

	if cursor != "" {
		cursorSnap, err := r.collection(conversationID).Doc(cursor).Get(ctx)
		if err != nil {
			return nil, "", goerr.Wrap(err, "failed to get cursor document",
				goerr.V("cursor", cursor))
		}
		query = query.StartAfter(cursorSnap)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var messages []*model.Message
	var hasMore bool

	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, "", goerr.Wrap(err, "failed to iterate messages")
		}

		if len(messages) >= limit {
			hasMore = true
			break
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, "", goerr.Wrap(err, "failed to unmarshal message",
				goerr.V("doc_id", snap.Ref.ID))
		}
		messages = append(messages, doc.toModel())
	}

	var nextCursor string
	if hasMore && len(messages) > 0 {
		nextCursor = string(messages[len(messages)-1].ID)
	}

	return messages, nextCursor, nil
}

func (r *messageRepository) Recent(ctx context.Context, conversationID types.ConversationID, n int) ([]*model.Message, error) {
	if n <= 0 {
		n = 10
	}

	iter := r.collection(conversationID).
		OrderBy("CreatedAt", firestore.Desc).
		Limit(n).
		Documents(ctx)
	defer iter.Stop()

	var newest []*model.Message
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate recent messages")
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal message",
				goerr.V("doc_id", snap.Ref.ID))
		}
		newest = append(newest, doc.toModel())
	}

	// Fetched newest first; reverse into chronological order
	result := make([]*model.Message, 0, len(newest))
	for i := len(newest) - 1; i >= 0; i-- {
		result = append(result, newest[i])
	}
	return result, nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"collab-service/internal/collab"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotebookNotFound = errors.New("notebook not found")

const notebooksCollection = "notebooks"

// chatAuthor and chatEntry mirror the shape of the chat array embedded in
// each notebook document.
type chatAuthor struct {
	ID   string `bson:"id"`
	Name string `bson:"name"`
}

type chatEntry struct {
	User   chatAuthor `bson:"user"`
	Text   string     `bson:"text"`
	SentAt time.Time  `bson:"sentAt"`
}

var _ collab.ChatStore = (*NotebookRepository)(nil)

// NotebookRepository persists collaboration data on notebook documents.
type NotebookRepository struct {
	coll *mongo.Collection
}

func NewNotebookRepository(db *mongo.Database) *NotebookRepository {
	return &NotebookRepository{
		coll: db.Collection(notebooksCollection),
	}
}

// idFilter matches a notebook by its ID. Notebook IDs are ObjectID hex in
// practice, but arbitrary string IDs are accepted for tooling and tests.
func idFilter(notebookID string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(notebookID); err == nil {
		return bson.M{"_id": oid}
	}
	return bson.M{"_id": notebookID}
}

// AppendChatMessage pushes one chat line onto the notebook's chat array.
func (r *NotebookRepository) AppendChatMessage(ctx context.Context, notebookID string, author collab.Identity, text string) error {
	update := bson.M{
		"$push": bson.M{
			"chat": chatEntry{
				User:   chatAuthor{ID: author.ID, Name: author.Name},
				Text:   text,
				SentAt: time.Now().UTC(),
			},
		},
	}

	res, err := r.coll.UpdateOne(ctx, idFilter(notebookID), update)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotebookNotFound
	}
	return nil
}

// RecentChatMessages returns the last limit persisted chat lines in order.
func (r *NotebookRepository) RecentChatMessages(ctx context.Context, notebookID string, limit int) ([]collab.StoredChatMessage, error) {
	opts := options.FindOne().SetProjection(bson.M{
		"chat": bson.M{"$slice": -limit},
	})

	var doc struct {
		Chat []chatEntry `bson:"chat"`
	}
	err := r.coll.FindOne(ctx, idFilter(notebookID), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotebookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch chat history: %w", err)
	}

	history := make([]collab.StoredChatMessage, 0, len(doc.Chat))
	for _, entry := range doc.Chat {
		history = append(history, collab.StoredChatMessage{
			User:      collab.Identity{ID: entry.User.ID, Name: entry.User.Name},
			Text:      entry.Text,
			Timestamp: entry.SentAt,
		})
	}
	return history, nil
}

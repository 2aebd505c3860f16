// Package database implements the metadata store on MongoDB: document
// records and chat history. Vector data lives in the vector index, never
// here.
package database

import (
	"context"
	"time"

	"docqa-platform/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	documentsCollection = "documents"
	historyCollection   = "chat_history"
)

type MetadataStore struct {
	db *mongo.Database
}

func NewMetadataStore(client *mongo.Client, dbName string) *MetadataStore {
	return &MetadataStore{db: client.Database(dbName)}
}

// InsertDocument upserts on (tenant_id, filename): re-uploading a file
// updates its chunk count and timestamp instead of duplicating the record.
func (s *MetadataStore) InsertDocument(ctx context.Context, tenantID, filename string, chunkCount int) error {
	filter := bson.M{"tenant_id": tenantID, "filename": filename}
	update := bson.M{
		"$set": bson.M{
			"chunk_count": chunkCount,
			"uploaded_at": time.Now().UTC(),
		},
		"$setOnInsert": bson.M{
			"tenant_id": tenantID,
			"filename":  filename,
		},
	}
	_, err := s.db.Collection(documentsCollection).
		UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (s *MetadataStore) DeleteDocument(ctx context.Context, tenantID, filename string) error {
	_, err := s.db.Collection(documentsCollection).
		DeleteOne(ctx, bson.M{"tenant_id": tenantID, "filename": filename})
	return err
}

// ListDocuments returns the tenant's documents, newest upload first.
func (s *MetadataStore) ListDocuments(ctx context.Context, tenantID string) ([]models.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}})
	cursor, err := s.db.Collection(documentsCollection).
		Find(ctx, bson.M{"tenant_id": tenantID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *MetadataStore) InsertChatTurn(ctx context.Context, turn models.ChatTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Collection(historyCollection).InsertOne(ctx, turn)
	return err
}

// GetChatHistory returns up to limit turns in chronological order. An
// empty sourceFile selects general-mode turns only, so document and
// general conversations stay separate.
func (s *MetadataStore) GetChatHistory(ctx context.Context, tenantID string, limit int, sourceFile string) ([]models.ChatTurn, error) {
	filter := historyFilter(tenantID, sourceFile)

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.db.Collection(historyCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var turns []models.ChatTurn
	if err := cursor.All(ctx, &turns); err != nil {
		return nil, err
	}
	// Newest-first from the index; callers want oldest-first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *MetadataStore) DeleteChatHistory(ctx context.Context, tenantID, sourceFile string) error {
	_, err := s.db.Collection(historyCollection).
		DeleteMany(ctx, historyFilter(tenantID, sourceFile))
	return err
}

func historyFilter(tenantID, sourceFile string) bson.M {
	filter := bson.M{"tenant_id": tenantID}
	if sourceFile == "" {
		// General-mode turns have no source_file field at all.
		filter["source_file"] = bson.M{"$in": bson.A{nil, ""}}
	} else {
		filter["source_file"] = sourceFile
	}
	return filter
}

// Package mongodb implements MongoDB adapters for the application.
package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"uniworld_server/core/port/out"
)

const (
	collectionDispatchBodies = "dispatch_bodies"

	// Bodies below this size are stored as-is; gzip overhead would
	// exceed the savings.
	compressionThreshold = 1024 // 1KB
)

// DispatchBodyAdapter archives full email bodies in MongoDB, keeping
// the Postgres dispatch row down to a preview column.
type DispatchBodyAdapter struct {
	collection *mongo.Collection
}

var _ out.DispatchBodyRepository = (*DispatchBodyAdapter)(nil)

func NewDispatchBodyAdapter(db *mongo.Database) *DispatchBodyAdapter {
	return &DispatchBodyAdapter{collection: db.Collection(collectionDispatchBodies)}
}

// EnsureIndexes creates the collection's indexes.
func (a *DispatchBodyAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "dispatch_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "archived_at", Value: 1}},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// dispatchBodyDocument is the MongoDB document shape.
type dispatchBodyDocument struct {
	DispatchID   string    `bson:"dispatch_id"`
	Body         []byte    `bson:"body"`
	IsCompressed bool      `bson:"is_compressed"`
	OriginalSize int64     `bson:"original_size"`
	ArchivedAt   time.Time `bson:"archived_at"`
}

// Save archives the full body under the dispatch id.
func (a *DispatchBodyAdapter) Save(ctx context.Context, dispatchID uuid.UUID, body string) error {
	data := []byte(body)
	compressed := false

	if len(data) > compressionThreshold {
		packed, err := gzipBytes(data)
		if err != nil {
			return fmt.Errorf("compress dispatch body: %w", err)
		}
		data = packed
		compressed = true
	}

	doc := dispatchBodyDocument{
		DispatchID:   dispatchID.String(),
		Body:         data,
		IsCompressed: compressed,
		OriginalSize: int64(len(body)),
		ArchivedAt:   time.Now().UTC(),
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"dispatch_id": dispatchID.String()}
	if _, err := a.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("save dispatch body: %w", err)
	}
	return nil
}

// Load retrieves an archived body.
func (a *DispatchBodyAdapter) Load(ctx context.Context, dispatchID uuid.UUID) (string, error) {
	var doc dispatchBodyDocument
	filter := bson.M{"dispatch_id": dispatchID.String()}

	if err := a.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", out.ErrNotFound
		}
		return "", fmt.Errorf("load dispatch body: %w", err)
	}

	if !doc.IsCompressed {
		return string(doc.Body), nil
	}

	plain, err := gunzipBytes(doc.Body)
	if err != nil {
		return "", fmt.Errorf("decompress dispatch body: %w", err)
	}
	return string(plain), nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

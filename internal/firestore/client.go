package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/cockroachdb/errors"
	"google.golang.org/api/iterator"
)

const batchSize = 250 // Stay well under Firestore's 500 operation limit

// Collection is one archived collection date.
type Collection struct {
	Address  string
	Category string
	Date     string
	RunID    string
}

// Client wraps the Firestore client for the collection archive.
type Client struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// New creates a new Firestore client.
func New(ctx context.Context, projectID, collection string) (*Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "creating firestore client")
	}
	return &Client{
		client:     client,
		collection: collection,
		now:        time.Now,
	}, nil
}

// Close closes the Firestore client.
func (c *Client) Close() error {
	return c.client.Close()
}

// ReplaceDatesForCategory replaces every archived date of (address, category)
// with dates.
func (c *Client) ReplaceDatesForCategory(ctx context.Context, address, category string, dates []string, runID string) error {
	coll := c.client.Collection(c.collection)

	// First, delete all existing documents for this address and category
	if err := c.deleteDates(ctx, address, category); err != nil {
		return errors.Wrap(err, "deleting archived dates")
	}

	updatedAt := c.now().UTC()
	for i := 0; i < len(dates); i += batchSize {
		end := i + batchSize
		if end > len(dates) {
			end = len(dates)
		}
		batch := c.client.Batch()

		for _, d := range dates[i:end] {
			col := Collection{Address: address, Category: category, Date: d, RunID: runID}
			batch.Set(coll.Doc(generateDocID(col)), collectionToMap(col, updatedAt))
		}

		if _, err := batch.Commit(ctx); err != nil {
			return errors.Wrap(err, "committing batch")
		}
	}

	return nil
}

// deleteDates deletes all documents of an address and category.
func (c *Client) deleteDates(ctx context.Context, address, category string) error {
	query := c.client.Collection(c.collection).
		Where("address", "==", address).
		Where("category", "==", category)

	for {
		iter := query.Limit(batchSize).Documents(ctx)
		batch := c.client.Batch()
		numDeleted := 0

		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				break
			}
			if err != nil {
				return errors.Wrap(err, "iterating documents")
			}
			batch.Delete(doc.Ref)
			numDeleted++
		}

		if numDeleted == 0 {
			return nil
		}

		if _, err := batch.Commit(ctx); err != nil {
			return errors.Wrap(err, "committing delete batch")
		}

		if numDeleted < batchSize {
			return nil
		}
	}
}

// generateDocID creates a unique document ID from address, category and date.
func generateDocID(col Collection) string {
	data := fmt.Sprintf("%s|%s|%s", col.Address, col.Category, col.Date)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16]) // Use first 16 bytes for shorter ID
}

// collectionToMap converts a Collection to a Firestore document map.
func collectionToMap(col Collection, updatedAt time.Time) map[string]interface{} {
	m := map[string]interface{}{
		"address":    col.Address,
		"category":   col.Category,
		"date":       col.Date,
		"updated_at": updatedAt,
	}
	if col.RunID != "" {
		m["run_id"] = col.RunID
	}
	return m
}

package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/certgen/internal/models"
	"github.com/Lllllllleong/certgen/internal/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreRegistry keeps one document per certificate, keyed by the number
// slug ("2024_0008"), since document IDs cannot contain "/".
type FirestoreRegistry struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreRegistry(ctx context.Context, projectID, collection string) (*FirestoreRegistry, error) {
	client, err := NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if collection == "" {
		collection = "certificates"
	}
	return &FirestoreRegistry{client: client, collection: collection}, nil
}

func docID(number string) string {
	return strings.ReplaceAll(number, "/", "_")
}

// Record overwrites the document for iss.Number.
func (r *FirestoreRegistry) Record(ctx context.Context, iss models.Issuance) error {
	if _, err := r.client.Collection(r.collection).Doc(docID(iss.Number)).Set(ctx, iss); err != nil {
		return fmt.Errorf("failed to record issuance %s: %w", iss.Number, err)
	}
	return nil
}

func (r *FirestoreRegistry) Lookup(ctx context.Context, number string) (*models.Issuance, error) {
	snap, err := r.client.Collection(r.collection).Doc(docID(number)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("issuance %s: %w", number, services.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up issuance %s: %w", number, err)
	}
	var iss models.Issuance
	if err := snap.DataTo(&iss); err != nil {
		return nil, fmt.Errorf("failed to decode issuance %s: %w", number, err)
	}
	return &iss, nil
}

func (r *FirestoreRegistry) Close() error {
	return r.client.Close()
}

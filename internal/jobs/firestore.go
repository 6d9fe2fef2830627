package jobs

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCollection = "conversion_jobs"

// FirestoreRecorder stores job records as documents keyed by job ID.
type FirestoreRecorder struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreRecorder creates a Firestore client for projectID.
func NewFirestoreRecorder(ctx context.Context, projectID, collection string) (*FirestoreRecorder, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firestore project id cannot be empty")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreRecorder{client: client, collection: collection}, nil
}

func (r *FirestoreRecorder) doc(id string) *firestore.DocumentRef {
	return r.client.Collection(r.collection).Doc(id)
}

// Start creates the job document.
func (r *FirestoreRecorder) Start(ctx context.Context, rec Record) error {
	if rec.Status == "" {
		rec.Status = StatusRunning
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := r.doc(rec.ID).Set(ctx, rec)
	return err
}

// Finish updates status and outcome fields.
func (r *FirestoreRecorder) Finish(ctx context.Context, id string, out Outcome) error {
	updates := []firestore.Update{
		{Path: "status", Value: string(out.Status)},
		{Path: "pageCount", Value: out.PageCount},
		{Path: "finishedAt", Value: time.Now()},
	}
	if out.Error != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: out.Error})
	}
	if out.OutputURI != "" {
		updates = append(updates, firestore.Update{Path: "outputUri", Value: out.OutputURI})
	}
	_, err := r.doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

// Get reads a job document.
func (r *FirestoreRecorder) Get(ctx context.Context, id string) (*Record, error) {
	snap, err := r.doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &rec, nil
}

// Close closes the client.
func (r *FirestoreRecorder) Close() error {
	return r.client.Close()
}

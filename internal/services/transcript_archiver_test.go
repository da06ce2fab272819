package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"dealroom/internal/domain/negotiation"
	dealroom_errors "dealroom/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type memoryBucket struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memoryBucket) PutObject(_ context.Context, key string, body []byte, contentType string) error {
	if b.err != nil {
		return b.err
	}
	b.objects[key] = body
	b.types[key] = contentType
	return nil
}

func TestTranscriptArchiver(t *testing.T) {
	ctx := context.Background()

	t.Run("should upload offers and chat of a closed negotiation", func(t *testing.T) {
		req := require.New(t)
		f := newNegotiationFixture(t)
		messages := NewMessageStore(f.store.Messages(), 0)
		bucket := newMemoryBucket()
		archiver := NewTranscriptArchiver(f.store.Negotiations(), messages, bucket, nil)

		// Given a negotiation rejected after some chat
		agg := f.open(t, "80")
		for _, body := range []string{"80 works?", "no, sorry"} {
			_, _, err := messages.Append(ctx, AppendParams{
				TransactionID: f.txn.ID,
				FromID:        f.txn.ClientID,
				ToID:          f.txn.ProviderID,
				Body:          body,
			})
			req.NoError(err)
		}
		_, err := f.svc.Reject(ctx, agg.Negotiation.ID, f.txn.ProviderID)
		req.NoError(err)

		// When it is archived
		req.NoError(archiver.Archive(ctx, agg.Negotiation.ID))

		// Then the transcript lands under the transaction prefix
		key := TranscriptKey(f.txn.ID, agg.Negotiation.ID)
		req.Contains(bucket.objects, key)
		req.Equal("application/json", bucket.types[key])

		var got Transcript
		req.NoError(json.Unmarshal(bucket.objects[key], &got))
		req.Equal(negotiation.StatusRejected, got.Negotiation.Status)
		req.Len(got.Messages, 2)
		req.Equal("no, sorry", got.Messages[1].Body)
	})

	t.Run("should skip negotiations that are still open", func(t *testing.T) {
		req := require.New(t)
		f := newNegotiationFixture(t)
		bucket := newMemoryBucket()
		archiver := NewTranscriptArchiver(f.store.Negotiations(), NewMessageStore(f.store.Messages(), 0), bucket, nil)

		agg := f.open(t, "90")

		req.NoError(archiver.Archive(ctx, agg.Negotiation.ID))
		req.Empty(bucket.objects)
	})

	t.Run("should surface storage and lookup failures", func(t *testing.T) {
		req := require.New(t)
		f := newNegotiationFixture(t)
		bucket := newMemoryBucket()
		bucket.err = errors.New("bucket unavailable")
		archiver := NewTranscriptArchiver(f.store.Negotiations(), NewMessageStore(f.store.Messages(), 0), bucket, nil)

		agg := f.open(t, "90")
		_, err := f.svc.Cancel(ctx, agg.Negotiation.ID, f.txn.ClientID)
		req.NoError(err)

		req.ErrorContains(archiver.Archive(ctx, agg.Negotiation.ID), "bucket unavailable")
		req.ErrorIs(archiver.Archive(ctx, uuid.New()), dealroom_errors.ErrNotFound)
	})
}

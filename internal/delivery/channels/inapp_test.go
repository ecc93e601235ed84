package channels

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	apperrors "github.com/clubsuite/notify/pkg/errors"
)

type stubInboxStore struct {
	saved []*InboxMessage
	err   error
}

func (s *stubInboxStore) SaveInboxMessage(ctx context.Context, msg *InboxMessage) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, msg)
	return nil
}

func TestInAppSender_WritesInboxRow(t *testing.T) {
	store := &stubInboxStore{}
	s := NewInAppSender(zaptest.NewLogger(t), store, 0)

	receipt, err := s.Send(context.Background(), "user-1", testPayload())

	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	msg := store.saved[0]
	assert.Equal(t, "user-1", msg.UserID)
	assert.Equal(t, "Payment due", msg.Title)
	assert.Equal(t, "club://billing/inv-42", msg.DeepLink)
	assert.Nil(t, msg.ReadAt)
	assert.Equal(t, msg.ID.String(), receipt.ProviderMessageID)

	_, parseErr := uuid.Parse(receipt.ProviderMessageID)
	assert.NoError(t, parseErr)
}

func TestInAppSender_StoreFailureIsTransient(t *testing.T) {
	store := &stubInboxStore{err: assert.AnError}
	s := NewInAppSender(zaptest.NewLogger(t), store, 0)

	_, err := s.Send(context.Background(), "user-1", testPayload())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTransient))
}

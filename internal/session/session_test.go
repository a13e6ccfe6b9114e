package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogout(t *testing.T) {
	s := New(context.Background(), Member{ID: 7, Name: "Leader"})
	require.NoError(t, s.Err())
	assert.Equal(t, int64(7), s.Member().ID)

	s.Logout()
	s.Logout()
	assert.ErrorIs(t, s.Err(), ErrEnded)
	assert.Error(t, s.Context().Err())
}

func TestParentCancellation(t *testing.T) {
	expired := errors.New("idle timeout")
	parent, cancel := context.WithCancelCause(context.Background())
	s := New(parent, Member{ID: 1})

	cancel(expired)
	assert.ErrorIs(t, s.Err(), expired)
}

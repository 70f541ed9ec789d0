package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions_IssueAndParse(t *testing.T) {
	t.Parallel()

	s, err := NewSessions("test-secret", time.Hour)
	require.NoError(t, err)

	token, err := s.Issue("alice")
	require.NoError(t, err)

	sess, err := s.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, Session{Username: "alice", Authenticated: true}, sess)
}

func TestSessions_RejectsForeignSecret(t *testing.T) {
	t.Parallel()

	a, err := NewSessions("secret-a", time.Hour)
	require.NoError(t, err)
	b, err := NewSessions("secret-b", time.Hour)
	require.NoError(t, err)

	token, err := a.Issue("alice")
	require.NoError(t, err)

	sess, err := b.Parse(token)
	assert.True(t, errors.Is(err, ErrInvalidSession))
	assert.False(t, sess.Authenticated)
}

func TestSessions_RandomSecretsDiffer(t *testing.T) {
	t.Parallel()

	a, err := NewSessions("", time.Hour)
	require.NoError(t, err)
	b, err := NewSessions("", time.Hour)
	require.NoError(t, err)

	token, err := a.Issue("alice")
	require.NoError(t, err)
	_, err = b.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessions_Expired(t *testing.T) {
	t.Parallel()

	s, err := NewSessions("test-secret", time.Minute)
	require.NoError(t, err)

	issuedAt := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issuedAt }
	token, err := s.Issue("alice")
	require.NoError(t, err)

	s.now = func() time.Time { return issuedAt.Add(2 * time.Minute) }
	_, err = s.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestSessions_GarbageToken(t *testing.T) {
	t.Parallel()

	s, err := NewSessions("test-secret", time.Hour)
	require.NoError(t, err)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		sess, err := s.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidSession, token)
		assert.Equal(t, Anonymous, sess)
	}
}

func TestSessionContext(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Anonymous, FromContext(context.Background()))

	s := Session{Username: "alice", Authenticated: true}
	ctx := WithSession(context.Background(), s)
	assert.Equal(t, s, FromContext(ctx))
}

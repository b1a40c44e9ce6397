package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"papertrade/internal/models"
	"papertrade/internal/store"
)

func newTestService() *Service {
	return NewService(store.NewMemory(), "test-secret")
}

func TestLogin_ProvisionsOnFirstUse(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	token, user, err := s.Login(ctx, "alice@example.com", "hunter2")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, UserIDFromEmail("alice@example.com"), user.ID)
	assert.Equal(t, "alice", user.Name)
	assert.Equal(t, "alice@example.com", user.Email)
}

func TestLogin_SameEmailSamePassword(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, first, err := s.Login(ctx, "alice@example.com", "hunter2")
	assert.NoError(t, err)

	_, second, err := s.Login(ctx, "alice@example.com", "hunter2")
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestLogin_WrongPasswordRejected(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, _, err := s.Login(ctx, "alice@example.com", "hunter2")
	assert.NoError(t, err)

	_, _, err = s.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestLogin_Validation(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, _, err := s.Login(ctx, "", "pw")
	assert.True(t, models.IsValidation(err))

	_, _, err = s.Login(ctx, "a@b.c", "")
	assert.True(t, models.IsValidation(err))
}

func TestTokenRoundTrip(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	token, user, err := s.Login(ctx, "alice@example.com", "hunter2")
	assert.NoError(t, err)

	userID, err := s.GetUserFromToken(token)
	assert.NoError(t, err)
	assert.Equal(t, user.ID, userID)
}

func TestGetUserFromToken_RejectsGarbageAndForeignTokens(t *testing.T) {
	s := newTestService()

	_, err := s.GetUserFromToken("not-a-token")
	assert.Error(t, err)

	// A token signed with a different secret must not verify.
	other := NewService(store.NewMemory(), "other-secret")
	token, _, err := other.Login(context.Background(), "alice@example.com", "pw")
	assert.NoError(t, err)
	_, err = s.GetUserFromToken(token)
	assert.Error(t, err)
}

func TestUserIDFromEmail_StableAndSanitized(t *testing.T) {
	id := UserIDFromEmail("alice@example.com")
	assert.Equal(t, id, UserIDFromEmail("alice@example.com"))
	assert.NotEqual(t, id, UserIDFromEmail("bob@example.com"))
	assert.Regexp(t, `^user-[a-zA-Z0-9]+$`, id)
}

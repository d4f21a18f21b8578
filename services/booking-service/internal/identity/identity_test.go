package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestWebhookProvisionerCreate(t *testing.T) {
	var got createUserRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/users", r.URL.Path)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(createUserResponse{ID: "user-42"})
	}))
	defer srv.Close()

	p := NewWebhookProvisioner(srv.URL+"/admin/", "s3cret")
	id, err := p.Create(context.Background(), "ops@clinic.test", "longenough", model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "user-42", id)
	assert.Equal(t, "ops@clinic.test", got.Email)
	assert.Equal(t, "admin", got.Role)
}

func TestWebhookProvisionerConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	_, err := NewWebhookProvisioner(srv.URL, "").Create(context.Background(), "a@b.test", "longenough", model.RoleStaff)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestWebhookProvisionerDeleteMissingIsOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/users/user-1", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	assert.NoError(t, NewWebhookProvisioner(srv.URL, "").Delete(context.Background(), "user-1"))
}

func TestShortPasswordRejectedBeforeCall(t *testing.T) {
	_, err := NewWebhookProvisioner("http://127.0.0.1:1", "").Create(context.Background(), "a@b.test", "short", model.RoleStaff)
	assert.ErrorIs(t, err, ErrWeakPassword)
}

type memCredentials struct {
	hashes map[string][]byte
	emails map[string]bool
}

var errTaken = errors.New("email taken")

func (m *memCredentials) SaveCredential(_ context.Context, userID, email string, hash []byte) error {
	if m.emails[email] {
		return errTaken
	}
	m.emails[email] = true
	m.hashes[userID] = hash
	return nil
}

func (m *memCredentials) DeleteCredential(_ context.Context, userID string) error {
	delete(m.hashes, userID)
	return nil
}

func TestLocalProvisioner(t *testing.T) {
	store := &memCredentials{hashes: map[string][]byte{}, emails: map[string]bool{}}
	p := NewLocalProvisioner(store, func(err error) bool { return errors.Is(err, errTaken) })
	p.cost = bcrypt.MinCost
	ctx := context.Background()

	id, err := p.Create(ctx, "nurse@clinic.test", "correct horse", model.RoleStaff)
	require.NoError(t, err)
	assert.True(t, CheckPassword(store.hashes[id], "correct horse"))
	assert.False(t, CheckPassword(store.hashes[id], "wrong horse"))

	_, err = p.Create(ctx, "nurse@clinic.test", "another one", model.RoleStaff)
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, p.Delete(ctx, id))
	assert.Empty(t, store.hashes)
}

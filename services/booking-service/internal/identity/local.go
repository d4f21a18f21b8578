package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// CredentialStore persists password hashes for LocalProvisioner.
type CredentialStore interface {
	SaveCredential(ctx context.Context, userID, email string, hash []byte) error
	DeleteCredential(ctx context.Context, userID string) error
}

// LocalProvisioner keeps bcrypt password hashes in the clinic database. It
// stands in for an external provider in development.
type LocalProvisioner struct {
	store CredentialStore
	// IsDuplicate classifies store errors that mean the email is taken.
	IsDuplicate func(error) bool
	cost        int
}

func NewLocalProvisioner(store CredentialStore, isDuplicate func(error) bool) *LocalProvisioner {
	return &LocalProvisioner{store: store, IsDuplicate: isDuplicate, cost: bcrypt.DefaultCost}
}

func (p *LocalProvisioner) Create(ctx context.Context, email, password string, _ model.StaffRole) (string, error) {
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", err
	}
	userID := uuid.NewString()
	if err := p.store.SaveCredential(ctx, userID, email, hash); err != nil {
		if p.IsDuplicate != nil && p.IsDuplicate(err) {
			return "", ErrDuplicate
		}
		return "", err
	}
	return userID, nil
}

func (p *LocalProvisioner) Delete(ctx context.Context, userID string) error {
	return p.store.DeleteCredential(ctx, userID)
}

// CheckPassword compares a stored hash with a candidate password.
func CheckPassword(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

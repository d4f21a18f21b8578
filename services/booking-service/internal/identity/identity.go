// Package identity creates and removes login identities for staff accounts.
package identity

import (
	"context"
	"errors"

	"github.com/healthcarepro/clinicbook/services/booking-service/internal/model"
)

const MinPasswordLength = 8

var (
	ErrDuplicate    = errors.New("identity already exists")
	ErrWeakPassword = errors.New("password is too short")
)

// Provisioner manages identities in the identity provider. Create returns
// the provider's user id, which becomes StaffAccount.UserID.
type Provisioner interface {
	Create(ctx context.Context, email, password string, role model.StaffRole) (string, error)
	Delete(ctx context.Context, userID string) error
}

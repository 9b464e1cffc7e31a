package port

import (
	"context"
	"time"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
)

// TokenLedger tracks every live token identifier. A token whose JTI is
// absent from the ledger is treated as revoked regardless of signature
// validity, which is what makes revocation immediate.
type TokenLedger interface {
	Insert(ctx context.Context, record domain.TokenRecord) error
	// Exists reports whether the JTI is live for the subject and bound to the
	// supplied audience claim (matched against the value or the application
	// reference, whichever side the record populates).
	Exists(ctx context.Context, userID, jti, audience string) (bool, error)
	Delete(ctx context.Context, jtis []string) error
	// DeleteAll removes every token for the user, optionally narrowed by kind
	// and/or audience claim.
	DeleteAll(ctx context.Context, userID string, kind *domain.TokenKind, audience *string) error
	// Prune removes the user's expired tokens plus the rotated-out oldJTI (when
	// non-empty) and returns the remaining live tokens partitioned by kind
	// together with the removed ids.
	Prune(ctx context.Context, userID string, oldJTI string, now time.Time) (*domain.PruneResult, error)
}

// ApplicationRepository persists registered application records.
type ApplicationRepository interface {
	Create(ctx context.Context, app domain.RegisteredApplication) error
	GetByID(ctx context.Context, id string) (*domain.RegisteredApplication, error)
	GetByUserAndName(ctx context.Context, userID, name string) (*domain.RegisteredApplication, error)
	UpdateLastLocation(ctx context.Context, id, location string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

package services

import (
	"context"
	"io"
	"time"

	"cirrusdrive/models"
)

// BlobStore holds file payloads. Locators are path-style and writes to the
// same locator overwrite the prior blob (last write wins).
type BlobStore interface {
	// Put stores the blob under locator and returns a download URL.
	Put(ctx context.Context, locator string, data io.Reader) (string, error)

	// Delete removes the blob. Deleting a missing blob returns ErrNotFound.
	Delete(ctx context.Context, locator string) error

	// ResolveURL returns a download URL for the blob, valid for ttl.
	ResolveURL(ctx context.Context, locator string, ttl time.Duration) (string, error)
}

// RecordStore holds file metadata records.
type RecordStore interface {
	// Create assigns rec.ID and rec.UploadTime and persists the record.
	// Upload times are strictly increasing per owner.
	Create(ctx context.Context, rec *models.File) error

	Get(ctx context.Context, id string) (*models.File, error)

	// Delete removes the record and returns its last state so the caller
	// can reverse blob and ledger effects.
	Delete(ctx context.Context, id string) (*models.File, error)

	// DeleteByOwnerAndName removes the owner's record with the given file
	// name, if any. Returns ErrNotFound when no such record exists.
	DeleteByOwnerAndName(ctx context.Context, ownerID, name string) (*models.File, error)

	// ListByOwner returns the owner's records ordered by upload time
	// descending.
	ListByOwner(ctx context.Context, ownerID string) ([]models.File, error)
}

// UserStore holds user records, including the quota counters the ledger
// mutates.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]models.User, error)
}

// Reservation is the outcome of a quota check.
type Reservation struct {
	Accepted    bool
	CurrentUsed int64
	Limit       int64
}

// QuotaLedger owns the per-user used-bytes counter. All arithmetic happens
// inside the ledger so concurrent mutations commute; callers never
// read-modify-write the counter.
type QuotaLedger interface {
	// CheckAndReserve atomically reserves delta bytes if the user's usage
	// would stay within the free limit. On rejection nothing is mutated
	// and the returned reservation carries the current counters.
	CheckAndReserve(ctx context.Context, userID string, delta int64) (Reservation, error)

	// Apply increments the counter by delta (negative to release) and
	// returns the new value. The counter never goes below zero; clamped
	// underflow is logged as a data-integrity warning.
	Apply(ctx context.Context, userID string, delta int64) (int64, error)

	// Reconcile recomputes the counter from the sum of the owner's file
	// record sizes. Idempotent; this is the authoritative repair path
	// after any detected drift.
	Reconcile(ctx context.Context, userID string) (int64, error)
}

package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cirrusdrive/models"
	"cirrusdrive/utils"
)

// FileService sequences the multi-backend writes behind one logical upload
// or delete. The three backends (blob store, record store, ledger) fail
// independently and nothing spans them transactionally, so every step has
// an explicit compensation or a flagged drift that reconciliation repairs.
type FileService struct {
	records RecordStore
	ledger  QuotaLedger
	blobs   BlobStore
	bus     *EventBus
}

type UploadRequest struct {
	Name        string
	ContentType string
	Size        int64
	Data        io.Reader
}

func NewFileService(records RecordStore, ledger QuotaLedger, blobs BlobStore, bus *EventBus) *FileService {
	return &FileService{
		records: records,
		ledger:  ledger,
		blobs:   blobs,
		bus:     bus,
	}
}

// blobLocator scopes blobs to (owner, file name); re-uploading the same
// name overwrites the prior blob.
func blobLocator(ownerID, name string) string {
	return fmt.Sprintf("users/%s/%s", ownerID, name)
}

// Upload runs: reserve quota -> write blob -> replace prior record ->
// create record -> release replaced bytes. The quota reservation happens
// before any bytes land, so a crash anywhere in the sequence leaves the
// counter equal to or above reality, never below.
//
// On ErrLedgerUpdateFailed the returned record is valid and the upload
// stands; only the counter is stale until reconciliation.
func (s *FileService) Upload(ctx context.Context, sess models.Session, req UploadRequest) (*models.File, error) {
	if req.Size <= 0 {
		return nil, fmt.Errorf("%w: file size must be positive", ErrBlobWriteFailed)
	}

	res, err := s.ledger.CheckAndReserve(ctx, sess.UserID, req.Size)
	if err != nil {
		return nil, err
	}
	if !res.Accepted {
		return nil, fmt.Errorf("%w: %d of %d bytes used, %d requested",
			ErrQuotaExceeded, res.CurrentUsed, res.Limit, req.Size)
	}

	locator := blobLocator(sess.UserID, req.Name)
	downloadURL, err := s.blobs.Put(ctx, locator, req.Data)
	if err != nil {
		s.release(ctx, sess.UserID, req.Size, "blob write failure")
		return nil, fmt.Errorf("%w: %v", ErrBlobWriteFailed, err)
	}

	// The blob layer already overwrote any prior content under this
	// locator, so the prior record (if any) now describes bytes that no
	// longer exist. Remove it and release its share of the quota.
	prior, err := s.records.DeleteByOwnerAndName(ctx, sess.UserID, req.Name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		// The surviving prior record now has a stale Size/DownloadURL:
		// its blob content was replaced above. The ledger stays
		// convergent (reconciliation sums record sizes) but the record
		// itself is wrong until the next upload or delete of this name.
		utils.LogIntegrityWarning("prior record for %s/%s not removed after blob overwrite, its metadata is stale: %v",
			sess.UserID, req.Name, err)
		s.release(ctx, sess.UserID, req.Size, "prior record removal failure")
		return nil, fmt.Errorf("%w: %v", ErrMetadataWriteFailed, err)
	}

	rec := &models.File{
		OwnerID:     sess.UserID,
		Name:        req.Name,
		ContentType: req.ContentType,
		Size:        req.Size,
		Locator:     locator,
		DownloadURL: downloadURL,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		// The blob is orphaned now; best-effort cleanup, then release.
		if delErr := s.blobs.Delete(ctx, locator); delErr != nil && !errors.Is(delErr, ErrNotFound) {
			utils.LogIntegrityWarning("orphaned blob %s could not be cleaned up: %v", locator, delErr)
		}
		s.release(ctx, sess.UserID, req.Size, "record create failure")
		return nil, fmt.Errorf("%w: %v", ErrMetadataWriteFailed, err)
	}

	s.bus.Publish(Event{Topic: TopicFiles, OwnerID: sess.UserID})
	s.bus.Publish(Event{Topic: TopicUsers})

	if prior != nil {
		if _, err := s.ledger.Apply(ctx, sess.UserID, -prior.Size); err != nil {
			utils.LogIntegrityWarning("failed to release %d bytes for replaced file %s/%s: %v",
				prior.Size, sess.UserID, req.Name, err)
			return rec, fmt.Errorf("%w: replaced file bytes not released", ErrLedgerUpdateFailed)
		}
	}

	return rec, nil
}

// release undoes a quota reservation after a failed upload step. A failed
// release leaves the counter over-reporting, which reconciliation fixes.
func (s *FileService) release(ctx context.Context, userID string, size int64, reason string) {
	if _, err := s.ledger.Apply(ctx, userID, -size); err != nil {
		utils.LogIntegrityWarning("failed to release %d-byte reservation for user %s after %s: %v",
			size, userID, reason, err)
	}
}

// Delete runs: fetch -> delete blob -> delete record -> decrement ledger.
// The ledger comes last on purpose: a crash mid-sequence over-counts the
// user's storage (denies them space they technically have), never
// under-counts it.
func (s *FileService) Delete(ctx context.Context, sess models.Session, fileID string) error {
	rec, err := s.records.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if rec.OwnerID != sess.UserID && !sess.IsAdmin() {
		return ErrUnauthorized
	}

	if err := s.blobs.Delete(ctx, rec.Locator); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrBlobUnavailable, err)
	}

	deleted, err := s.records.Delete(ctx, fileID)
	if errors.Is(err, ErrNotFound) {
		// A concurrent delete finished the record; it also owns the
		// ledger decrement.
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMetadataWriteFailed, err)
	}

	s.bus.Publish(Event{Topic: TopicFiles, OwnerID: rec.OwnerID})
	s.bus.Publish(Event{Topic: TopicUsers})

	if _, err := s.ledger.Apply(ctx, rec.OwnerID, -deleted.Size); err != nil {
		utils.LogIntegrityWarning("file %s deleted but %d bytes not released for user %s: %v",
			fileID, deleted.Size, rec.OwnerID, err)
		return fmt.Errorf("%w: deleted file bytes not released", ErrLedgerUpdateFailed)
	}

	return nil
}

func (s *FileService) Get(ctx context.Context, sess models.Session, fileID string) (*models.File, error) {
	rec, err := s.records.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != sess.UserID && !sess.IsAdmin() {
		return nil, ErrUnauthorized
	}
	return rec, nil
}

func (s *FileService) ListOwn(ctx context.Context, sess models.Session) ([]models.File, error) {
	return s.records.ListByOwner(ctx, sess.UserID)
}

// DownloadURL returns a fresh signed URL; the one stored at upload time
// expires.
func (s *FileService) DownloadURL(ctx context.Context, sess models.Session, fileID string) (string, error) {
	rec, err := s.Get(ctx, sess, fileID)
	if err != nil {
		return "", err
	}
	return s.blobs.ResolveURL(ctx, rec.Locator, downloadURLTTL)
}

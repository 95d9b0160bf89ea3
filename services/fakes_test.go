package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"cirrusdrive/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory backends with failure injection. They honor the same
// contracts as the Mongo and B2 implementations so the orchestrator,
// admin and watch layers can be exercised without external services.

type memBlobStore struct {
	mu         sync.Mutex
	blobs      map[string][]byte
	failPut    bool
	failDelete map[string]bool
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{
		blobs:      make(map[string][]byte),
		failDelete: make(map[string]bool),
	}
}

func (s *memBlobStore) Put(ctx context.Context, locator string, data io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return "", fmt.Errorf("%w: injected failure", ErrBlobWriteFailed)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBlobWriteFailed, err)
	}
	s.blobs[locator] = buf.Bytes()
	return "mem://" + locator, nil
}

func (s *memBlobStore) Delete(ctx context.Context, locator string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete[locator] {
		return fmt.Errorf("%w: injected failure", ErrBlobUnavailable)
	}
	if _, ok := s.blobs[locator]; !ok {
		return ErrNotFound
	}
	delete(s.blobs, locator)
	return nil
}

func (s *memBlobStore) ResolveURL(ctx context.Context, locator string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[locator]; !ok {
		return "", ErrNotFound
	}
	return "mem://" + locator, nil
}

func (s *memBlobStore) has(locator string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[locator]
	return ok
}

type memRecordStore struct {
	mu               sync.Mutex
	records          map[string]models.File
	lastTime         map[string]time.Time
	failCreate       bool
	failDeleteByName bool
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{
		records:  make(map[string]models.File),
		lastTime: make(map[string]time.Time),
	}
}

func (s *memRecordStore) Create(ctx context.Context, rec *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate {
		return fmt.Errorf("%w: injected failure", ErrMetadataWriteFailed)
	}

	rec.ID = primitive.NewObjectID()
	now := time.Now().UTC().Truncate(time.Millisecond)
	if last, ok := s.lastTime[rec.OwnerID]; ok && !now.After(last) {
		now = last.Add(time.Millisecond)
	}
	s.lastTime[rec.OwnerID] = now
	rec.UploadTime = now

	s.records[rec.ID.Hex()] = *rec
	return nil
}

func (s *memRecordStore) Get(ctx context.Context, id string) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *memRecordStore) Delete(ctx context.Context, id string) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.records, id)
	return &rec, nil
}

func (s *memRecordStore) DeleteByOwnerAndName(ctx context.Context, ownerID, name string) (*models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeleteByName {
		return nil, fmt.Errorf("%w: injected failure", ErrMetadataWriteFailed)
	}
	for id, rec := range s.records {
		if rec.OwnerID == ownerID && rec.Name == name {
			delete(s.records, id)
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memRecordStore) ListByOwner(ctx context.Context, ownerID string) ([]models.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var files []models.File
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			files = append(files, rec)
		}
	}
	sort.Slice(files, func(i, j int) bool {
		if !files[i].UploadTime.Equal(files[j].UploadTime) {
			return files[i].UploadTime.After(files[j].UploadTime)
		}
		return files[i].ID.Hex() > files[j].ID.Hex()
	})
	return files, nil
}

func (s *memRecordStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type memUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]models.User)}
}

func (s *memUserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return ErrAccountExists
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID.Hex()] = *user
	return nil
}

func (s *memUserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (s *memUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *memUserStore) List(ctx context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []models.User
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].ID.Hex() < users[j].ID.Hex()
	})
	return users, nil
}

func (s *memUserStore) setRole(id, role string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.Role = role
		s.users[id] = u
	}
}

func (s *memUserStore) usedStorage(id string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].UsedStorage
}

// memLedger mutates the counters held by memUserStore under its lock, so
// reservations are atomic the way the Mongo conditional update is.
type memLedger struct {
	users     *memUserStore
	records   *memRecordStore
	failApply bool
}

func newMemLedger(users *memUserStore, records *memRecordStore) *memLedger {
	return &memLedger{users: users, records: records}
}

func (l *memLedger) CheckAndReserve(ctx context.Context, userID string, delta int64) (Reservation, error) {
	l.users.mu.Lock()
	defer l.users.mu.Unlock()

	user, ok := l.users.users[userID]
	if !ok {
		return Reservation{}, ErrNotFound
	}
	if user.UsedStorage+delta > user.FreeLimit {
		return Reservation{Accepted: false, CurrentUsed: user.UsedStorage, Limit: user.FreeLimit}, nil
	}
	user.UsedStorage += delta
	l.users.users[userID] = user
	return Reservation{Accepted: true, CurrentUsed: user.UsedStorage, Limit: user.FreeLimit}, nil
}

func (l *memLedger) Apply(ctx context.Context, userID string, delta int64) (int64, error) {
	l.users.mu.Lock()
	defer l.users.mu.Unlock()

	if l.failApply {
		return 0, fmt.Errorf("%w: injected failure", ErrLedgerUpdateFailed)
	}
	user, ok := l.users.users[userID]
	if !ok {
		return 0, ErrNotFound
	}
	user.UsedStorage += delta
	if user.UsedStorage < 0 {
		user.UsedStorage = 0
	}
	l.users.users[userID] = user
	return user.UsedStorage, nil
}

func (l *memLedger) Reconcile(ctx context.Context, userID string) (int64, error) {
	files, err := l.records.ListByOwner(ctx, userID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}

	l.users.mu.Lock()
	defer l.users.mu.Unlock()
	user, ok := l.users.users[userID]
	if !ok {
		return 0, ErrNotFound
	}
	user.UsedStorage = total
	l.users.users[userID] = user
	return total, nil
}

package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"cirrusdrive/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fixture struct {
	users   *memUserStore
	records *memRecordStore
	ledger  *memLedger
	blobs   *memBlobStore
	bus     *EventBus
	files   *FileService
}

func newFixture() *fixture {
	users := newMemUserStore()
	records := newMemRecordStore()
	ledger := newMemLedger(users, records)
	blobs := newMemBlobStore()
	bus := NewEventBus()

	return &fixture{
		users:   users,
		records: records,
		ledger:  ledger,
		blobs:   blobs,
		bus:     bus,
		files:   NewFileService(records, ledger, blobs, bus),
	}
}

func (f *fixture) addUser(t *testing.T, role string, freeLimit int64) models.Session {
	t.Helper()
	user := &models.User{
		Email:     primitive.NewObjectID().Hex() + "@example.com",
		Name:      "Test User",
		Role:      role,
		FreeLimit: freeLimit,
	}
	if err := f.users.Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return models.Session{UserID: user.ID.Hex(), Email: user.Email, Name: user.Name, Role: role}
}

func (f *fixture) upload(t *testing.T, sess models.Session, name string, size int64) *models.File {
	t.Helper()
	rec, err := f.files.Upload(context.Background(), sess, UploadRequest{
		Name:        name,
		ContentType: "text/plain",
		Size:        size,
		Data:        strings.NewReader(strings.Repeat("x", int(size))),
	})
	if err != nil {
		t.Fatalf("upload of %s failed: %v", name, err)
	}
	return rec
}

func TestUploadAndGetRoundTrip(t *testing.T) {
	f := newFixture()
	sess := f.addUser(t, models.RoleUser, 1000)

	rec := f.upload(t, sess, "notes.txt", 42)

	got, err := f.files.Get(context.Background(), sess, rec.ID.Hex())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "notes.txt" {
		t.Errorf("Name = %q, want %q", got.Name, "notes.txt")
	}
	if got.Size != 42 {
		t.Errorf("Size = %d, want 42", got.Size)
	}
	if got.OwnerID != sess.UserID {
		t.Errorf("OwnerID = %q, want %q", got.OwnerID, sess.UserID)
	}
	if used := f.users.usedStorage(sess.UserID); used != 42 {
		t.Errorf("used storage = %d, want 42", used)
	}
	if !f.blobs.has(blobLocator(sess.UserID, "notes.txt")) {
		t.Error("blob missing after upload")
	}
}

func TestUploadQuotaExceededHasNoSideEffects(t *testing.T) {
	f := newFixture()
	sess := f.addUser(t, models.RoleUser, 100)
	f.upload(t, sess, "base.txt", 80)

	_, err := f.files.Upload(context.Background(), sess, UploadRequest{
		Name: "big.txt",
		Size: 30,
		Data: strings.NewReader(strings.Repeat("x", 30)),
	})
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("err = %v, want ErrQuotaExceeded", err)
	}

	if used := f.users.usedStorage(sess.UserID); used != 80 {
		t.Errorf("used storage = %d, want 80", used)
	}
	if n := f.records.count(); n != 1 {
		t.Errorf("record count = %d, want 1", n)
	}
	if f.blobs.has(blobLocator(sess.UserID, "big.txt")) {
		t.Error("rejected upload left a blob behind")
	}
}

func TestUploadBlobFailureReleasesReservation(t *testing.T) {
	f := newFixture()
	sess := f.addUser(t, models.RoleUser, 1000)
	f.blobs.failPut = true

	_, err := f.files.Upload(context.Background(), sess, UploadRequest{
		Name: "doomed.txt",
		Size: 50,
		Data: strings.NewReader(strings.Repeat("x", 50)),
	})
	if !errors.Is(err, ErrBlobWriteFailed) {
		t.Fatalf("err = %v, want ErrBlobWriteFailed", err)
	}

	if used := f.users.usedStorage(sess.UserID); used != 0 {
		t.Errorf("used storage = %d, want 0 after released reservation", used)
	}
	if n := f.records.count(); n != 0 {
		t.Errorf("record count = %d, want 0", n)
	}
}

func TestUploadMetadataFailureCleansUpBlob(t *testing.T) {
	f := newFixture()
	sess := f.addUser(t, models.RoleUser, 1000)
	f.records.failCreate = true

	_, err := f.files.Upload(context.Background(), sess, UploadRequest{
		Name: "orphan.txt",
		Size: 50,
		Data: strings.NewReader(strings.Repeat("x", 50)),
	})
	if !errors.Is(err, ErrMetadataWriteFailed) {
		t.Fatalf("err = %v, want ErrMetadataWriteFailed", err)
	}

	if f.blobs.has(blobLocator(sess.UserID, "orphan.txt")) {
		t.Error("orphaned blob was not cleaned up")
	}
	if used := f.users.usedStorage(sess.UserID); used != 0 {
		t.Errorf("used storage = %d, want 0", used)
	}
}

func TestUploadReplacesSameName(t *testing.T) {
	f := newFixture()
	sess := f.addUser(t, models.RoleUser, 1000)

	f.upload(t, sess, "report.pdf", 10)
	rec := f.upload(t, sess, "report.pdf", 30)

	files, err := f.files.ListOwn(context.Background(), sess)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("record count = %d, want 1 after replace", len(files))
	}
	if files[0].ID != rec.ID {
		t.Error("surviving record is not the replacement")
	}
	if files[0].Size != 30 {
		t.Errorf("Size = %d, want 30", files[0].Size)
	}
	if used := f.users.usedStorage(sess.UserID); used != 30 {
		t.Errorf("used storage = %d, want 30 (replaced bytes released)", used)
	}
}

// When removing the prior record fails after the blob was overwritten,
// the upload fails and the reservation is released, but the survivor's
// metadata no longer matches the blob content. The ledger still converges
// on the record sizes.
func TestUploadPriorRecordRemovalFailureKeepsLedgerConvergent(t *testing.T) {
	f := newFixture()
	sess := f.addUser(t, models.RoleUser, 1000)
	f.upload(t, sess, "report.pdf", 10)

	f.records.failDeleteByName = true
	_, err := f.files.Upload(context.Background(), sess, UploadRequest{
		Name: "report.pdf",
		Size: 30,
		Data: strings.NewReader(strings.Repeat("x", 30)),
	})
	if !errors.Is(err, ErrMetadataWriteFailed) {
		t.Fatalf("err = %v, want ErrMetadataWriteFailed", err)
	}

	if n := f.records.count(); n != 1 {
		t.Errorf("record count = %d, want 1 (prior record survives)", n)
	}
	if used := f.users.usedStorage(sess.UserID); used != 10 {
		t.Errorf("used storage = %d, want 10 after released reservation", used)
	}

	f.records.failDeleteByName = false
	used, err := f.ledger.Reconcile(context.Background(), sess.UserID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if used != 10 {
		t.Errorf("reconciled used = %d, want 10 (sum of record sizes)", used)
	}
}

func TestListOwnFilesDescendingUploadTime(t *testing.T) {
	f := newFixture()
	sess := f.addUser(t, models.RoleUser, 1000)

	f.upload(t, sess, "first.txt", 10)
	f.upload(t, sess, "second.txt", 20)
	f.upload(t, sess, "third.txt", 30)

	files, err := f.files.ListOwn(context.Background(), sess)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("record count = %d, want 3", len(files))
	}

	wantOrder := []string{"third.txt", "second.txt", "first.txt"}
	for i, want := range wantOrder {
		if files[i].Name != want {
			t.Errorf("files[%d].Name = %q, want %q", i, files[i].Name, want)
		}
	}
	for i := 1; i < len(files); i++ {
		if !files[i-1].UploadTime.After(files[i].UploadTime) {
			t.Errorf("upload times not strictly descending at index %d", i)
		}
	}
}

func TestDeleteReleasesQuotaAndBlob(t *testing.T) {
	f := newFixture()
	sess := f.addUser(t, models.RoleUser, 1000)
	rec := f.upload(t, sess, "temp.bin", 64)

	if err := f.files.Delete(context.Background(), sess, rec.ID.Hex()); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if f.blobs.has(rec.Locator) {
		t.Error("blob still present after delete")
	}
	if n := f.records.count(); n != 0 {
		t.Errorf("record count = %d, want 0", n)
	}
	if used := f.users.usedStorage(sess.UserID); used != 0 {
		t.Errorf("used storage = %d, want 0", used)
	}
}

func TestDeleteNonexistentFileIsNotFound(t *testing.T) {
	f := newFixture()
	sess := f.addUser(t, models.RoleUser, 1000)
	f.upload(t, sess, "keep.txt", 10)

	err := f.files.Delete(context.Background(), sess, primitive.NewObjectID().Hex())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	if n := f.records.count(); n != 1 {
		t.Errorf("record count = %d, want 1", n)
	}
	if used := f.users.usedStorage(sess.UserID); used != 10 {
		t.Errorf("used storage = %d, want 10", used)
	}
}

func TestDeleteRejectsForeignFile(t *testing.T) {
	f := newFixture()
	owner := f.addUser(t, models.RoleUser, 1000)
	other := f.addUser(t, models.RoleUser, 1000)
	rec := f.upload(t, owner, "private.txt", 10)

	err := f.files.Delete(context.Background(), other, rec.ID.Hex())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if n := f.records.count(); n != 1 {
		t.Errorf("record count = %d, want 1", n)
	}
}

func TestDeleteLedgerFailureOverCountsUntilReconciled(t *testing.T) {
	f := newFixture()
	sess := f.addUser(t, models.RoleUser, 1000)
	rec := f.upload(t, sess, "stale.txt", 100)

	f.ledger.failApply = true
	err := f.files.Delete(context.Background(), sess, rec.ID.Hex())
	if !errors.Is(err, ErrLedgerUpdateFailed) {
		t.Fatalf("err = %v, want ErrLedgerUpdateFailed", err)
	}

	// File and blob are gone but the counter over-reports: safe bias.
	if n := f.records.count(); n != 0 {
		t.Errorf("record count = %d, want 0", n)
	}
	if used := f.users.usedStorage(sess.UserID); used != 100 {
		t.Errorf("used storage = %d, want stale 100", used)
	}

	f.ledger.failApply = false
	used, err := f.ledger.Reconcile(context.Background(), sess.UserID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if used != 0 {
		t.Errorf("reconciled used = %d, want 0", used)
	}
}

// Reconciliation convergence: whatever mix of successes and injected
// failures ran, the counter equals the sum of surviving record sizes
// after one reconcile pass.
func TestReconcileConverges(t *testing.T) {
	f := newFixture()
	sess := f.addUser(t, models.RoleUser, 10000)
	ctx := context.Background()

	f.upload(t, sess, "a.txt", 100)
	b := f.upload(t, sess, "b.txt", 200)
	f.upload(t, sess, "c.txt", 300)

	f.ledger.failApply = true
	if err := f.files.Delete(ctx, sess, b.ID.Hex()); !errors.Is(err, ErrLedgerUpdateFailed) {
		t.Fatalf("err = %v, want ErrLedgerUpdateFailed", err)
	}
	f.ledger.failApply = false

	used, err := f.ledger.Reconcile(ctx, sess.UserID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}

	files, _ := f.files.ListOwn(ctx, sess)
	var want int64
	for _, file := range files {
		want += file.Size
	}
	if used != want {
		t.Errorf("used = %d, want %d (sum of record sizes)", used, want)
	}

	// A second pass changes nothing.
	again, err := f.ledger.Reconcile(ctx, sess.UserID)
	if err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if again != used {
		t.Errorf("second reconcile = %d, want %d", again, used)
	}
}

// Two concurrent uploads racing the quota check: the atomic conditional
// reservation admits at most one when together they would exceed the
// limit.
func TestConcurrentUploadsCannotJointlyExceedLimit(t *testing.T) {
	f := newFixture()
	sess := f.addUser(t, models.RoleUser, 100)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.files.Upload(ctx, sess, UploadRequest{
				Name: []string{"left.bin", "right.bin"}[i],
				Size: 60,
				Data: strings.NewReader(strings.Repeat("x", 60)),
			})
		}(i)
	}
	wg.Wait()

	var rejected int
	for _, err := range errs {
		if errors.Is(err, ErrQuotaExceeded) {
			rejected++
		} else if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if rejected != 1 {
		t.Errorf("rejected = %d uploads, want exactly 1", rejected)
	}
	if used := f.users.usedStorage(sess.UserID); used != 60 {
		t.Errorf("used storage = %d, want 60", used)
	}
}

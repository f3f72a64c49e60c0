package docs_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"docvault/internal/docs"
	"docvault/internal/keys"
	"docvault/internal/model"
	"docvault/internal/objectstore"
	"docvault/internal/testutil"
)

// fakeQueue records enqueued jobs and can be scripted to fail.
type fakeQueue struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (q *fakeQueue) Enqueue(documentID string, _ []byte, _, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, documentID)
	return nil
}

func (q *fakeQueue) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.jobs...)
}

// failingKeyProvider always errors.
type failingKeyProvider struct{}

func (failingKeyProvider) GetOrCreateKey(context.Context) (string, []byte, error) {
	return "", nil, errors.New("kms outage")
}

func (failingKeyProvider) GetKey(context.Context, string) ([]byte, error) {
	return nil, errors.New("kms outage")
}

// failingBlobStore wraps an ObjectStore and fails scripted operations.
// putErrs and getErrs are consumed one per call; an exhausted script
// lets calls through. deleteErr applies to every Delete until cleared.
type failingBlobStore struct {
	docs.ObjectStore
	putErrs   []error
	getErrs   []error
	deleteErr error
}

func (s *failingBlobStore) Put(ctx context.Context, path string, r io.Reader, size int64) error {
	if err := takeErr(&s.putErrs); err != nil {
		return err
	}
	return s.ObjectStore.Put(ctx, path, r, size)
}

func (s *failingBlobStore) Get(ctx context.Context, path string, w io.Writer) error {
	if err := takeErr(&s.getErrs); err != nil {
		return err
	}
	return s.ObjectStore.Get(ctx, path, w)
}

func (s *failingBlobStore) Delete(ctx context.Context, path string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.ObjectStore.Delete(ctx, path)
}

func takeErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

// flakyKeyProvider fails a fixed number of calls before delegating.
type flakyKeyProvider struct {
	docs.KeyProvider
	failures int
}

func (p *flakyKeyProvider) GetOrCreateKey(ctx context.Context) (string, []byte, error) {
	if p.failures > 0 {
		p.failures--
		return "", nil, errors.New("kms timeout")
	}
	return p.KeyProvider.GetOrCreateKey(ctx)
}

func (p *flakyKeyProvider) GetKey(ctx context.Context, keyID string) ([]byte, error) {
	if p.failures > 0 {
		p.failures--
		return nil, errors.New("kms timeout")
	}
	return p.KeyProvider.GetKey(ctx, keyID)
}

type testEnv struct {
	svc   *docs.Service
	store *testutil.MemoryMetadataStore
	blobs *objectstore.MemoryStore
	queue *fakeQueue
	clock *testutil.StubClock
}

func defaultLimits() docs.Limits {
	return docs.Limits{
		MaxSizeBytes:        1024,
		AllowedContentTypes: []string{"application/pdf", "image/jpeg", "image/png"},
		StoragePrefix:       "documents",
	}
}

func defaultPolicy() docs.Policy {
	return docs.Policy{RetentionWindow: 30 * 24 * time.Hour}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store: testutil.NewMemoryMetadataStore(),
		blobs: objectstore.NewMemoryStore(),
		queue: &fakeQueue{},
		clock: testutil.FixedClock(),
	}
	env.svc = docs.NewService(
		env.store, env.blobs, keys.NewMemoryProvider(), env.queue,
		defaultPolicy(), defaultLimits(),
		docs.NewNopLogger(), env.clock, testutil.NewStubIDGenerator(),
	)
	return env
}

// newContentReader returns a distinct 9-byte payload per index.
func newContentReader(i int) io.Reader {
	return strings.NewReader(fmt.Sprintf("content %d", i))
}

func mustUpload(t *testing.T, env *testEnv, owner, docType, content string) *model.DocumentRecord {
	t.Helper()

	rec, err := env.svc.Upload(context.Background(), owner, docType, strings.NewReader(content), "application/pdf")
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	return rec
}

func TestService_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("stores encrypted content and metadata", func(t *testing.T) {
		env := newTestEnv(t)
		content := "medical history of patient zero"

		rec := mustUpload(t, env, "owner-1", model.TypeMedicalRecord, content)

		if rec.Version != 1 {
			t.Errorf("Version = %d, want 1", rec.Version)
		}
		if rec.Status != model.StatusActive {
			t.Errorf("Status = %q, want ACTIVE", rec.Status)
		}
		if rec.OCRStatus != model.OCRPending {
			t.Errorf("OCRStatus = %q, want PENDING", rec.OCRStatus)
		}
		if rec.Checksum != testutil.SHA256Hex([]byte(content)) {
			t.Errorf("Checksum = %q, want checksum of plaintext", rec.Checksum)
		}
		if rec.SizeBytes != int64(len(content)) {
			t.Errorf("SizeBytes = %d, want %d", rec.SizeBytes, len(content))
		}
		if rec.EncryptionKeyID == "" {
			t.Error("EncryptionKeyID is empty")
		}

		// Stored blob must not contain the plaintext
		var blob bytes.Buffer
		if err := env.blobs.Get(ctx, rec.StoragePath, &blob); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if bytes.Contains(blob.Bytes(), []byte(content)) {
			t.Error("plaintext found in stored blob")
		}

		// OCR job was handed off
		if got := env.queue.enqueued(); len(got) != 1 || got[0] != rec.ID {
			t.Errorf("enqueued jobs = %v, want [%s]", got, rec.ID)
		}
	})

	t.Run("validation failures have no side effects", func(t *testing.T) {
		tests := []struct {
			name        string
			owner       string
			docType     string
			content     string
			contentType string
			wantErr     error
		}{
			{
				name:        "missing owner",
				docType:     model.TypeIdentity,
				content:     "x",
				contentType: "application/pdf",
				wantErr:     docs.ErrMissingOwner,
			},
			{
				name:        "unknown document type",
				owner:       "owner-1",
				docType:     "TAX_RETURN",
				content:     "x",
				contentType: "application/pdf",
				wantErr:     docs.ErrUnknownDocumentType,
			},
			{
				name:        "unsupported content type",
				owner:       "owner-1",
				docType:     model.TypeIdentity,
				content:     "x",
				contentType: "text/html",
				wantErr:     docs.ErrUnsupportedMediaType,
			},
			{
				name:        "payload too large",
				owner:       "owner-1",
				docType:     model.TypeIdentity,
				content:     strings.Repeat("x", 1025),
				contentType: "application/pdf",
				wantErr:     docs.ErrPayloadTooLarge,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				env := newTestEnv(t)

				_, err := env.svc.Upload(ctx, tt.owner, tt.docType, strings.NewReader(tt.content), tt.contentType)
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Upload() error = %v, want %v", err, tt.wantErr)
				}
				if env.blobs.Len() != 0 {
					t.Error("blob written despite validation failure")
				}
				if env.store.Len() != 0 {
					t.Error("metadata written despite validation failure")
				}
			})
		}
	})

	t.Run("payload at the limit is accepted", func(t *testing.T) {
		env := newTestEnv(t)
		mustUpload(t, env, "owner-1", model.TypeIdentity, strings.Repeat("x", 1024))
	})

	t.Run("key provider failure aborts before any write", func(t *testing.T) {
		env := newTestEnv(t)
		svc := docs.NewService(
			env.store, env.blobs, failingKeyProvider{}, env.queue,
			defaultPolicy(), defaultLimits(),
			docs.NewNopLogger(), env.clock, testutil.NewStubIDGenerator(),
		)

		_, err := svc.Upload(ctx, "owner-1", model.TypeIdentity, strings.NewReader("x"), "application/pdf")
		if !errors.Is(err, docs.ErrKeyUnavailable) {
			t.Fatalf("Upload() error = %v, want ErrKeyUnavailable", err)
		}
		if env.blobs.Len() != 0 {
			t.Error("blob written despite key failure")
		}
	})
}

func TestService_Upload_Versioning(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	first := mustUpload(t, env, "owner-1", model.TypeIdentity, "passport v1")
	second := mustUpload(t, env, "owner-1", model.TypeIdentity, "passport v2")

	if first.Version != 1 || second.Version != 2 {
		t.Errorf("versions = %d, %d, want 1, 2", first.Version, second.Version)
	}

	// The prior version is superseded but still retrievable
	prior, content, err := env.svc.RetrieveVersion(ctx, "owner-1", model.TypeIdentity, 1)
	if err != nil {
		t.Fatalf("RetrieveVersion(1) error = %v", err)
	}
	if prior.Status != model.StatusSuperseded {
		t.Errorf("prior status = %q, want SUPERSEDED", prior.Status)
	}
	if string(content) != "passport v1" {
		t.Errorf("prior content = %q, want %q", content, "passport v1")
	}

	// Current resolves to the new version
	current, content, err := env.svc.RetrieveCurrent(ctx, "owner-1", model.TypeIdentity)
	if err != nil {
		t.Fatalf("RetrieveCurrent() error = %v", err)
	}
	if current.ID != second.ID {
		t.Errorf("current = %s, want %s", current.ID, second.ID)
	}
	if string(content) != "passport v2" {
		t.Errorf("current content = %q, want %q", content, "passport v2")
	}

	// Both versions keep distinct blobs and keys
	if first.StoragePath == second.StoragePath {
		t.Error("versions share a storage path")
	}
	if first.EncryptionKeyID == second.EncryptionKeyID {
		t.Error("versions share an encryption key")
	}
}

func TestService_Upload_ConcurrentSameLineage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	const uploads = 10
	var wg sync.WaitGroup
	errs := make([]error, uploads)
	for i := 0; i < uploads; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Upload(ctx, "owner-1", model.TypeIdentity,
				strings.NewReader(fmt.Sprintf("content %d", i)), "application/pdf")
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("upload %d error = %v", i, err)
		}
	}

	recs, err := env.svc.ListVersions(ctx, "owner-1", model.TypeIdentity)
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	if len(recs) != uploads {
		t.Fatalf("len(recs) = %d, want %d", len(recs), uploads)
	}

	seen := map[int64]bool{}
	active := 0
	for _, rec := range recs {
		if seen[rec.Version] {
			t.Errorf("version %d assigned twice", rec.Version)
		}
		seen[rec.Version] = true
		if rec.Status == model.StatusActive {
			active++
		}
	}
	for v := int64(1); v <= uploads; v++ {
		if !seen[v] {
			t.Errorf("version %d missing", v)
		}
	}
	if active != 1 {
		t.Errorf("active versions = %d, want exactly 1", active)
	}
}

func TestService_Upload_MetadataFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("version conflict is retried", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.CreateVersionErrs = []error{docs.ErrVersionConflict, docs.ErrVersionConflict, nil}

		rec := mustUpload(t, env, "owner-1", model.TypeIdentity, "content")
		if rec.Version != 1 {
			t.Errorf("Version = %d, want 1", rec.Version)
		}
	})

	t.Run("exhausted retries delete the blob", func(t *testing.T) {
		env := newTestEnv(t)
		for i := 0; i < 5; i++ {
			env.store.CreateVersionErrs = append(env.store.CreateVersionErrs, docs.ErrVersionConflict)
		}

		_, err := env.svc.Upload(ctx, "owner-1", model.TypeIdentity, strings.NewReader("content"), "application/pdf")
		if !errors.Is(err, docs.ErrUnavailable) {
			t.Fatalf("Upload() error = %v, want ErrUnavailable", err)
		}
		if env.blobs.Len() != 0 {
			t.Error("orphan blob left after metadata failure")
		}
	})

	t.Run("failed compensating delete records an orphan", func(t *testing.T) {
		env := newTestEnv(t)
		// The failure must outlast the transient-retry budget.
		metaErr := errors.New("disk full")
		env.store.CreateVersionErrs = []error{metaErr, metaErr, metaErr}
		blobs := &failingBlobStore{ObjectStore: env.blobs, deleteErr: errors.New("storage down")}
		svc := docs.NewService(
			env.store, blobs, keys.NewMemoryProvider(), env.queue,
			defaultPolicy(), defaultLimits(),
			docs.NewNopLogger(), env.clock, testutil.NewStubIDGenerator(),
		)

		_, err := svc.Upload(ctx, "owner-1", model.TypeIdentity, strings.NewReader("content"), "application/pdf")
		if !errors.Is(err, docs.ErrUnavailable) {
			t.Fatalf("Upload() error = %v, want ErrUnavailable", err)
		}

		orphans, err := env.store.ListOrphans(ctx)
		if err != nil {
			t.Fatalf("ListOrphans() error = %v", err)
		}
		if len(orphans) != 1 {
			t.Fatalf("len(orphans) = %d, want 1", len(orphans))
		}
	})
}

func TestService_TransientFailures(t *testing.T) {
	ctx := context.Background()
	transient := errors.New("connection reset")

	// newFlakyEnv swaps in scriptable blob and key collaborators while
	// keeping the shared metadata store and underlying memory blobs.
	newFlakyEnv := func(t *testing.T) (*testEnv, *failingBlobStore, *flakyKeyProvider) {
		env := newTestEnv(t)
		blobs := &failingBlobStore{ObjectStore: env.blobs}
		kp := &flakyKeyProvider{KeyProvider: keys.NewMemoryProvider()}
		env.svc = docs.NewService(
			env.store, blobs, kp, env.queue,
			defaultPolicy(), defaultLimits(),
			docs.NewNopLogger(), env.clock, testutil.NewStubIDGenerator(),
		)
		return env, blobs, kp
	}

	t.Run("blob write recovers within the retry budget", func(t *testing.T) {
		env, blobs, _ := newFlakyEnv(t)
		blobs.putErrs = []error{transient, transient}

		rec := mustUpload(t, env, "owner-1", model.TypeIdentity, "content")
		if rec.Version != 1 {
			t.Errorf("Version = %d, want 1", rec.Version)
		}
		if env.blobs.Len() != 1 {
			t.Errorf("blobs = %d, want 1", env.blobs.Len())
		}
	})

	t.Run("blob write fails once the budget is spent", func(t *testing.T) {
		env, blobs, _ := newFlakyEnv(t)
		blobs.putErrs = []error{transient, transient, transient}

		_, err := env.svc.Upload(ctx, "owner-1", model.TypeIdentity, strings.NewReader("content"), "application/pdf")
		if !errors.Is(err, docs.ErrStorageWrite) {
			t.Fatalf("Upload() error = %v, want ErrStorageWrite", err)
		}
		if env.store.Len() != 0 {
			t.Error("metadata row written despite blob failure")
		}
	})

	t.Run("blob read recovers within the retry budget", func(t *testing.T) {
		env, blobs, _ := newFlakyEnv(t)
		rec := mustUpload(t, env, "owner-1", model.TypeIdentity, "content")

		blobs.getErrs = []error{transient, transient}
		_, content, err := env.svc.Retrieve(ctx, rec.ID)
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		if string(content) != "content" {
			t.Errorf("content = %q, want %q", content, "content")
		}
	})

	t.Run("key provider recovers within the retry budget", func(t *testing.T) {
		env, _, kp := newFlakyEnv(t)
		kp.failures = 2
		rec := mustUpload(t, env, "owner-1", model.TypeIdentity, "content")

		kp.failures = 2
		if _, _, err := env.svc.Retrieve(ctx, rec.ID); err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
	})

	t.Run("metadata write recovers within the retry budget", func(t *testing.T) {
		env := newTestEnv(t)
		env.store.CreateVersionErrs = []error{transient, transient}

		rec := mustUpload(t, env, "owner-1", model.TypeIdentity, "content")
		if rec.Version != 1 {
			t.Errorf("Version = %d, want 1", rec.Version)
		}
	})
}

func TestService_Upload_OCRHandoff(t *testing.T) {
	ctx := context.Background()

	t.Run("enqueue failure marks record failed but upload succeeds", func(t *testing.T) {
		env := newTestEnv(t)
		env.queue.err = errors.New("queue full")

		rec, err := env.svc.Upload(ctx, "owner-1", model.TypeIdentity, strings.NewReader("content"), "application/pdf")
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if rec.OCRStatus != model.OCRFailed {
			t.Errorf("returned OCRStatus = %q, want FAILED", rec.OCRStatus)
		}

		stored, err := env.store.GetDocument(ctx, rec.ID)
		if err != nil {
			t.Fatalf("GetDocument() error = %v", err)
		}
		if stored.OCRStatus != model.OCRFailed {
			t.Errorf("stored OCRStatus = %q, want FAILED", stored.OCRStatus)
		}
	})

	t.Run("nil queue marks record failed", func(t *testing.T) {
		env := newTestEnv(t)
		svc := docs.NewService(
			env.store, env.blobs, keys.NewMemoryProvider(), nil,
			defaultPolicy(), defaultLimits(),
			docs.NewNopLogger(), env.clock, testutil.NewStubIDGenerator(),
		)

		rec, err := svc.Upload(ctx, "owner-1", model.TypeIdentity, strings.NewReader("content"), "application/pdf")
		if err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
		if rec.OCRStatus != model.OCRFailed {
			t.Errorf("OCRStatus = %q, want FAILED", rec.OCRStatus)
		}
	})
}

func TestService_Retrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip returns the original plaintext", func(t *testing.T) {
		env := newTestEnv(t)
		content := "proof of address: 1 Main St"
		uploaded := mustUpload(t, env, "owner-1", model.TypeProofOfAddress, content)

		rec, got, err := env.svc.Retrieve(ctx, uploaded.ID)
		if err != nil {
			t.Fatalf("Retrieve() error = %v", err)
		}
		if string(got) != content {
			t.Errorf("content = %q, want %q", got, content)
		}
		if rec.ID != uploaded.ID {
			t.Errorf("record id = %s, want %s", rec.ID, uploaded.ID)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		env := newTestEnv(t)

		_, _, err := env.svc.Retrieve(ctx, "missing")
		if !errors.Is(err, docs.ErrNotFound) {
			t.Errorf("Retrieve() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("missing blob is a consistency fault", func(t *testing.T) {
		env := newTestEnv(t)
		uploaded := mustUpload(t, env, "owner-1", model.TypeIdentity, "content")

		if err := env.blobs.Delete(ctx, uploaded.StoragePath); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}

		_, _, err := env.svc.Retrieve(ctx, uploaded.ID)
		if !errors.Is(err, docs.ErrStorageRead) {
			t.Errorf("Retrieve() error = %v, want ErrStorageRead", err)
		}
	})

	t.Run("tampered ciphertext fails closed", func(t *testing.T) {
		env := newTestEnv(t)
		uploaded := mustUpload(t, env, "owner-1", model.TypeIdentity, "sensitive content")

		env.blobs.Corrupt(uploaded.StoragePath, func(b []byte) []byte {
			b[len(b)-1] ^= 0x01
			return b
		})

		_, content, err := env.svc.Retrieve(ctx, uploaded.ID)
		if !errors.Is(err, docs.ErrDecryptionFailed) {
			t.Errorf("Retrieve() error = %v, want ErrDecryptionFailed", err)
		}
		if content != nil {
			t.Error("plaintext returned despite tampered ciphertext")
		}
	})

	t.Run("checksum mismatch fails closed", func(t *testing.T) {
		env := newTestEnv(t)
		uploaded := mustUpload(t, env, "owner-1", model.TypeIdentity, "sensitive content")

		env.store.Tamper(uploaded.ID, func(rec *model.DocumentRecord) {
			rec.Checksum = testutil.SHA256Hex([]byte("something else"))
		})

		_, content, err := env.svc.Retrieve(ctx, uploaded.ID)
		if !errors.Is(err, docs.ErrIntegrityCheckFailed) {
			t.Errorf("Retrieve() error = %v, want ErrIntegrityCheckFailed", err)
		}
		if content != nil {
			t.Error("plaintext returned despite checksum mismatch")
		}
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("soft delete hides the current version", func(t *testing.T) {
		env := newTestEnv(t)
		uploaded := mustUpload(t, env, "owner-1", model.TypeIdentity, "content")

		if err := env.svc.Delete(ctx, uploaded.ID); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}

		// No fallback to older versions
		_, _, err := env.svc.RetrieveCurrent(ctx, "owner-1", model.TypeIdentity)
		if !errors.Is(err, docs.ErrNotFound) {
			t.Errorf("RetrieveCurrent() error = %v, want ErrNotFound", err)
		}

		// The blob survives until the sweep
		rec, err := env.store.GetDocument(ctx, uploaded.ID)
		if err != nil {
			t.Fatalf("GetDocument() error = %v", err)
		}
		if rec.Status != model.StatusSoftDeleted {
			t.Errorf("status = %q, want SOFT_DELETED", rec.Status)
		}
		if rec.PurgeEligibleAt == nil {
			t.Fatal("PurgeEligibleAt not set")
		}
		want := env.clock.Now().UTC().Add(30 * 24 * time.Hour)
		if !rec.PurgeEligibleAt.Equal(want) {
			t.Errorf("PurgeEligibleAt = %v, want %v", rec.PurgeEligibleAt, want)
		}
		if env.blobs.Len() != 1 {
			t.Error("blob removed before retention expired")
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		env := newTestEnv(t)
		uploaded := mustUpload(t, env, "owner-1", model.TypeIdentity, "content")

		if err := env.svc.Delete(ctx, uploaded.ID); err != nil {
			t.Fatalf("first Delete() error = %v", err)
		}
		if err := env.svc.Delete(ctx, uploaded.ID); err != nil {
			t.Errorf("second Delete() error = %v", err)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		env := newTestEnv(t)

		if err := env.svc.Delete(ctx, "missing"); !errors.Is(err, docs.ErrNotFound) {
			t.Errorf("Delete() error = %v, want ErrNotFound", err)
		}
	})
}

func TestService_ListVersions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	mustUpload(t, env, "owner-1", model.TypeIdentity, "v1")
	mustUpload(t, env, "owner-1", model.TypeIdentity, "v2")
	mustUpload(t, env, "owner-1", model.TypeMedicalRecord, "other lineage")

	recs, err := env.svc.ListVersions(ctx, "owner-1", model.TypeIdentity)
	if err != nil {
		t.Fatalf("ListVersions() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
	if recs[0].Version != 2 || recs[1].Version != 1 {
		t.Errorf("versions = [%d, %d], want [2, 1]", recs[0].Version, recs[1].Version)
	}
}

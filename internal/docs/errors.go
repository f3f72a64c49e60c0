package docs

import "errors"

// Caller-facing error taxonomy. The lifecycle service is the only
// boundary that maps collaborator failures onto these kinds; callers
// match with errors.Is and never see a raw collaborator error class.
var (
	// ErrPayloadTooLarge rejects uploads over the configured maximum.
	// Raised before any side effect.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrUnsupportedMediaType rejects content types outside the
	// allow-list. Raised before any side effect.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrUnknownDocumentType rejects document types outside the known
	// categories. Raised before any side effect.
	ErrUnknownDocumentType = errors.New("unknown document type")

	// ErrMissingOwner rejects uploads without an owner id. Raised
	// before any side effect.
	ErrMissingOwner = errors.New("owner id is required")

	// ErrNotFound means the requested record does not exist or no
	// active version exists for the lineage.
	ErrNotFound = errors.New("document not found")

	// ErrPurged means the record exists but its blob has been purged
	// after retention expiry. Distinct from ErrNotFound so callers can
	// tell "never existed" from "retained metadata, content gone".
	ErrPurged = errors.New("document purged")

	// ErrVersionConflict signals a lost race on version assignment for
	// a (owner, documentType) lineage. Retried internally; callers see
	// it only after retries exhaust.
	ErrVersionConflict = errors.New("version conflict")

	// ErrStorageWrite means the blob write failed; the upload aborted
	// with no metadata row created.
	ErrStorageWrite = errors.New("storage write failed")

	// ErrStorageRead is a consistency fault: metadata references a blob
	// the object store cannot produce. Logged as critical.
	ErrStorageRead = errors.New("storage read failed")

	// ErrKeyUnavailable means the key provider cannot supply the data
	// key. Possibly transient, surfaced distinctly from decryption
	// failures.
	ErrKeyUnavailable = errors.New("encryption key unavailable")

	// ErrDecryptionFailed is a security-relevant fault: the AEAD tag
	// did not verify. No plaintext is returned.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrIntegrityCheckFailed is a security-relevant fault: the
	// plaintext checksum did not match after decryption. No plaintext
	// is returned.
	ErrIntegrityCheckFailed = errors.New("integrity check failed")

	// ErrUnavailable wraps transient infrastructure failures after
	// bounded retries; callers may try again later.
	ErrUnavailable = errors.New("service unavailable")

	// ErrBlobNotFound is returned by ObjectStore.Get when no blob
	// exists at the given path. The service maps it onto ErrStorageRead
	// when metadata says the blob should exist.
	ErrBlobNotFound = errors.New("blob not found")
)

package model

import "time"

// DocumentStatus is the lifecycle state of a document version.
type DocumentStatus string

const (
	// StatusActive marks the current version of a document lineage.
	StatusActive DocumentStatus = "ACTIVE"
	// StatusSuperseded marks a prior version replaced by a newer upload.
	// Superseded versions remain retrievable by explicit version lookup.
	StatusSuperseded DocumentStatus = "SUPERSEDED"
	// StatusSoftDeleted marks a version deleted by a caller but still
	// within its retention window.
	StatusSoftDeleted DocumentStatus = "SOFT_DELETED"
	// StatusPurged is terminal: the blob is gone, the metadata row stays
	// for audit.
	StatusPurged DocumentStatus = "PURGED"
)

// OCRStatus tracks asynchronous text extraction for a document version.
type OCRStatus string

const (
	OCRPending  OCRStatus = "PENDING"
	OCRComplete OCRStatus = "COMPLETE"
	OCRFailed   OCRStatus = "FAILED"
)

// Document type categories accepted by the service.
const (
	TypeIdentity       = "IDENTITY"
	TypeProofOfAddress = "PROOF_OF_ADDRESS"
	TypeMedicalRecord  = "MEDICAL_RECORD"
)

// KnownDocumentTypes lists the accepted documentType values.
var KnownDocumentTypes = []string{
	TypeIdentity,
	TypeProofOfAddress,
	TypeMedicalRecord,
}

// IsKnownDocumentType reports whether t is an accepted document type.
func IsKnownDocumentType(t string) bool {
	for _, k := range KnownDocumentTypes {
		if t == k {
			return true
		}
	}
	return false
}

// DocumentRecord is the metadata row for one stored document version.
// The plaintext checksum and the encryption key id travel with the
// version; raw key material is never part of the record.
type DocumentRecord struct {
	ID              string // UUID, immutable
	OwnerID         string // subject the document belongs to, immutable
	DocumentType    string // one of KnownDocumentTypes
	StoragePath     string // opaque object store locator, one blob per version
	EncryptionKeyID string // key id at the key provider for this version
	Checksum        string // SHA-256 of the plaintext, lowercase hex
	SizeBytes       int64
	ContentType     string
	Version         int64 // monotonically increasing per (OwnerID, DocumentType)
	Status          DocumentStatus
	OCRStatus       OCRStatus
	OCRResult       *OCRFields // nil until extraction completes
	UploadedAt      time.Time
	DeletedAt       *time.Time
	PurgeEligibleAt *time.Time
}

// OCRFields is the extraction result attached to a document. The shape
// depends on the document type: exactly one of the typed variants is set,
// matching DocumentType.
type OCRFields struct {
	DocumentType   string          `json:"document_type"`
	Identity       *IdentityFields `json:"identity,omitempty"`
	ProofOfAddress *AddressFields  `json:"proof_of_address,omitempty"`
	MedicalRecord  *MedicalFields  `json:"medical_record,omitempty"`
}

// IdentityFields holds fields extracted from identity documents.
type IdentityFields struct {
	FullName       string `json:"full_name,omitempty"`
	DocumentNumber string `json:"document_number,omitempty"`
	RawText        string `json:"raw_text,omitempty"`
}

// AddressFields holds fields extracted from proof-of-address documents.
type AddressFields struct {
	AddressLines []string `json:"address_lines,omitempty"`
	RawText      string   `json:"raw_text,omitempty"`
}

// MedicalFields holds fields extracted from medical records.
type MedicalFields struct {
	ProviderName string `json:"provider_name,omitempty"`
	RawText      string `json:"raw_text,omitempty"`
}

// OrphanBlob records a blob whose metadata write failed and whose
// compensating delete also failed. The retention sweep retries the
// delete until it succeeds.
type OrphanBlob struct {
	StoragePath string
	Reason      string
	RecordedAt  time.Time
}

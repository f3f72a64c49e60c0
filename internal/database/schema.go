package database

// Schema is the current document metadata schema. It must stay in sync
// with the migration files; tests apply it directly to in-memory
// databases without running the migration machinery.
const Schema = `
CREATE TABLE documents (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    document_type TEXT NOT NULL,
    storage_path TEXT NOT NULL,
    encryption_key_id TEXT NOT NULL,
    checksum TEXT NOT NULL,
    size_bytes INTEGER NOT NULL,
    content_type TEXT NOT NULL,
    version INTEGER NOT NULL,
    status TEXT NOT NULL,
    ocr_status TEXT NOT NULL,
    ocr_result TEXT,
    uploaded_at TIMESTAMP NOT NULL,
    deleted_at TIMESTAMP,
    purge_eligible_at TIMESTAMP,
    UNIQUE (owner_id, document_type, version)
);

CREATE INDEX idx_documents_lineage ON documents (owner_id, document_type);
CREATE INDEX idx_documents_purge ON documents (status, purge_eligible_at);

CREATE TABLE orphan_blobs (
    storage_path TEXT PRIMARY KEY,
    reason TEXT NOT NULL,
    recorded_at TIMESTAMP NOT NULL
);
`

package docs

import (
	"context"

	"docvault/internal/model"
)

// Extractor is the external OCR capability. It is treated as unreliable
// and slow; callers bound every invocation with a timeout and retry a
// fixed number of times.
type Extractor interface {
	Extract(ctx context.Context, content []byte, contentType, documentType string) (*model.OCRFields, error)
}

// OCRQueue accepts asynchronous extraction jobs. Enqueue hands the
// plaintext buffer to the queue and returns immediately; the buffer must
// not be persisted and is dropped once the job finishes. A full queue
// returns an error rather than blocking the upload path.
type OCRQueue interface {
	Enqueue(documentID string, content []byte, contentType, documentType string) error
}

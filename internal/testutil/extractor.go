package testutil

import (
	"context"
	"sync"

	"docvault/internal/docs"
	"docvault/internal/model"
)

// ScriptedExtractor is an Extractor whose first FailTimes calls return
// Err, after which every call returns Fields. Safe for concurrent use.
type ScriptedExtractor struct {
	mu        sync.Mutex
	FailTimes int
	Err       error
	Fields    *model.OCRFields

	calls int
}

func (e *ScriptedExtractor) Extract(_ context.Context, _ []byte, _, documentType string) (*model.OCRFields, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls++
	if e.calls <= e.FailTimes {
		return nil, e.Err
	}
	if e.Fields != nil {
		return e.Fields, nil
	}
	return &model.OCRFields{DocumentType: documentType}, nil
}

// Calls returns how many times Extract has been invoked.
func (e *ScriptedExtractor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Compile-time check that ScriptedExtractor implements docs.Extractor
var _ docs.Extractor = (*ScriptedExtractor)(nil)

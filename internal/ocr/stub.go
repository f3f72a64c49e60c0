package ocr

import (
	"context"
	"fmt"
	"unicode"

	"docvault/internal/docs"
	"docvault/internal/model"
)

// StubExtractor is a deterministic, offline Extractor for development
// and tests. It pulls printable text out of the document bytes and
// shapes the result for the document type; no external OCR service is
// contacted.
type StubExtractor struct{}

func NewStubExtractor() *StubExtractor {
	return &StubExtractor{}
}

// maxRawText bounds how much extracted text is kept per document.
const maxRawText = 1024

func (e *StubExtractor) Extract(ctx context.Context, content []byte, contentType, documentType string) (*model.OCRFields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw := printableText(content, maxRawText)
	fields := &model.OCRFields{DocumentType: documentType}

	switch documentType {
	case model.TypeIdentity:
		fields.Identity = &model.IdentityFields{RawText: raw}
	case model.TypeProofOfAddress:
		fields.ProofOfAddress = &model.AddressFields{RawText: raw}
	case model.TypeMedicalRecord:
		fields.MedicalRecord = &model.MedicalFields{RawText: raw}
	default:
		return nil, fmt.Errorf("unknown document type: %q", documentType)
	}

	return fields, nil
}

// printableText keeps runs of printable ASCII from data, separated by
// single spaces, up to limit bytes.
func printableText(data []byte, limit int) string {
	out := make([]byte, 0, limit)
	inRun := false
	for _, b := range data {
		if len(out) >= limit {
			break
		}
		if b < unicode.MaxASCII && (unicode.IsPrint(rune(b)) && b != ' ') {
			out = append(out, b)
			inRun = true
			continue
		}
		if inRun {
			out = append(out, ' ')
			inRun = false
		}
	}
	for len(out) > 0 && out[len(out)-1] == ' ' {
		out = out[:len(out)-1]
	}
	return string(out)
}

// Compile-time check that StubExtractor implements docs.Extractor
var _ docs.Extractor = (*StubExtractor)(nil)

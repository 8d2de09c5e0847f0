package legal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("ingest: %w", NewError(KindContentTooShort, "ingestDocumentText", cause))
	if !errors.Is(err, ErrContentTooShort) {
		t.Fatalf("want ErrContentTooShort in chain: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("want cause in chain")
	}
	if errors.Is(err, ErrExtraction) {
		t.Fatalf("unexpected ErrExtraction match")
	}
	if k, ok := KindOf(err); !ok || k != KindContentTooShort {
		t.Fatalf("KindOf: want=%s got=%s ok=%v", KindContentTooShort, k, ok)
	}
}

func TestVectorIDAndParseDocumentType(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	if got := VectorID(id, 3); got != "00000000-0000-0000-0000-000000000001-chunk-3" {
		t.Fatalf("VectorID: got=%s", got)
	}
	if ParseDocumentType(" act ") != DocumentTypeAct {
		t.Fatalf("ParseDocumentType: want ACT")
	}
	if ParseDocumentType("memo") != DocumentTypeOther {
		t.Fatalf("ParseDocumentType: want OTHER")
	}
}

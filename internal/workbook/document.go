package workbook

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is the root of one workbook: *OrgInfo, *QA or *TQA.
type Document interface {
	Kind() Kind
}

// New returns the all-defaults document for kind.
func New(kind Kind) (Document, error) {
	switch kind {
	case KindOrgInfo:
		return NewOrgInfo(), nil
	case KindQualityAssurance:
		return NewQA(), nil
	case KindTrainingQualityAssurance:
		return NewTQA(), nil
	}
	return nil, fmt.Errorf("unknown workbook kind %q", kind)
}

// Decode parses stored JSON into a document of kind. Empty input yields the
// defaults. Malformed input also yields the defaults and reports
// malformed=true so the caller can log it; it is never an error. Keys the
// model no longer knows are ignored.
func Decode(kind Kind, raw []byte) (doc Document, malformed bool, err error) {
	doc, err = New(kind)
	if err != nil {
		return nil, false, err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return doc, false, nil
	}
	if err := json.Unmarshal(trimmed, doc); err != nil {
		fresh, _ := New(kind)
		return fresh, true, nil
	}
	return doc, false, nil
}

// Encode serialises a document for storage.
func Encode(doc Document) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s document: %w", doc.Kind(), err)
	}
	return b, nil
}

// Clone deep-copies a document through its JSON form.
func Clone[D Document](doc D) D {
	b, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("workbook: clone encode: %v", err))
	}
	var out D
	fresh, _ := New(doc.Kind())
	out = fresh.(D)
	if err := json.Unmarshal(b, out); err != nil {
		panic(fmt.Sprintf("workbook: clone decode: %v", err))
	}
	return out
}

package models

import (
	"errors"
	"time"
)

const tabLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ErrTabsExhausted is returned when a package already uses every identifier
// from A through ZZ.
var ErrTabsExhausted = errors.New("maximum number of tabs reached")

// Tab is a named slot in a package holding a stack of document versions.
// Its identifier is fixed at creation.
type Tab struct {
	Identifier  string      `json:"identifier"   validate:"required"`
	DisplayName string      `json:"display_name" validate:"required,min=1"`
	Order       int         `json:"order"`
	Required    bool        `json:"required"`
	Documents   []*Document `json:"documents,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// CurrentDocument returns the current version in this tab, or nil when the
// tab is empty.
func (t *Tab) CurrentDocument() *Document {
	for _, doc := range t.Documents {
		if doc.Current {
			return doc
		}
	}

	return nil
}

// NextDocumentVersion returns the version number for the next upload.
func (t *Tab) NextDocumentVersion() int {
	maxVersion := 0

	for _, doc := range t.Documents {
		if doc.Version > maxVersion {
			maxVersion = doc.Version
		}
	}

	return maxVersion + 1
}

// Document is one immutable version of a tab's content. The engine only
// consumes the version number and content hash; bytes live elsewhere.
type Document struct {
	ID         string    `json:"id"`
	Version    int       `json:"version"`
	Filename   string    `json:"filename"`
	FileSize   int64     `json:"file_size"`
	MimeType   string    `json:"mime_type"`
	SHA256Hash string    `json:"sha256_hash" validate:"required,len=64"`
	UploadedBy string    `json:"uploaded_by"`
	UploadedAt time.Time `json:"uploaded_at"`
	Current    bool      `json:"current"`
}

// NextTabIdentifier generates the next free identifier: A-Z, then AA-ZZ.
func NextTabIdentifier(existing []string) (string, error) {
	used := make(map[string]bool, len(existing))
	for _, id := range existing {
		used[id] = true
	}

	for _, letter := range tabLetters {
		id := string(letter)
		if !used[id] {
			return id, nil
		}
	}

	for _, first := range tabLetters {
		for _, second := range tabLetters {
			id := string(first) + string(second)
			if !used[id] {
				return id, nil
			}
		}
	}

	return "", ErrTabsExhausted
}

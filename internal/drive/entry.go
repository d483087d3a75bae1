package drive

import (
	"strings"
	"time"

	gdrive "google.golang.org/api/drive/v3"
)

// Reserved MIME types of the remote service.
const (
	FolderMimeType = "application/vnd.google-apps.folder"
	// DocumentMimePrefix marks service-internal documents, which have no
	// binary content and must be exported.
	DocumentMimePrefix = "application/vnd.google-apps"
)

// RootID addresses the user's root folder.
const RootID = "root"

// Kind classifies an entry by its MIME type.
type Kind int

const (
	KindFile Kind = iota
	KindFolder
	KindDocument
)

func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindDocument:
		return "document"
	default:
		return "file"
	}
}

// Entry is one child record returned by a listing. Entries are never cached.
type Entry struct {
	ID           string
	Name         string
	MimeType     string
	Size         int64
	ModifiedTime time.Time
}

// Kind reports whether e is a folder, a service-internal document or a
// native file.
func (e Entry) Kind() Kind {
	switch {
	case e.MimeType == FolderMimeType:
		return KindFolder
	case strings.Contains(e.MimeType, DocumentMimePrefix):
		return KindDocument
	default:
		return KindFile
	}
}

// IsFolder is shorthand for Kind() == KindFolder.
func (e Entry) IsFolder() bool {
	return e.Kind() == KindFolder
}

func toEntry(f *gdrive.File) Entry {
	e := Entry{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     f.Size,
	}

	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			e.ModifiedTime = t
		}
	}

	return e
}

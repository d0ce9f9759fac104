package drive

import (
	"strings"
	"time"
)

// FileInfo is the part of a Drive file's metadata that intake and sharing read.
type FileInfo struct {
	ID           string
	Name         string
	MimeType     string
	Size         int64 // zero for folders
	ModifiedTime time.Time
	Parents      []string
}

// IsFolder reports whether the entry is a Drive folder.
func (f *FileInfo) IsFolder() bool {
	return f.MimeType == FolderMimeType
}

// IsNative reports whether the entry is a Google Docs/Sheets/Slides style
// document, which has no binary content to download.
func (f *FileInfo) IsNative() bool {
	return !f.IsFolder() && strings.HasPrefix(f.MimeType, nativeMimePrefix)
}

// ListOptions selects one page of a file listing. Query uses the Drive search
// syntax; trashed files are always excluded.
type ListOptions struct {
	Query     string
	PageSize  int
	PageToken string
}

package library

import (
	"path/filepath"
	"strings"
)

// Normalized file-type tags. Derived once at upload from mime + extension
// and used for inline-view decisions and extraction dispatch.
const (
	FileTypePDF      = "pdf"
	FileTypeText     = "text"
	FileTypeMarkdown = "markdown"
	FileTypeHTML     = "html"
	FileTypeDocx     = "docx"
	FileTypeEpub     = "epub"
	FileTypeImage    = "image"
	FileTypeAudio    = "audio"
	FileTypeVideo    = "video"
	FileTypeUnknown  = "unknown"
)

func NormalizeFileType(mimeType, filename string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case mt == "application/pdf":
		return FileTypePDF
	case mt == "text/markdown":
		return FileTypeMarkdown
	case mt == "text/html":
		return FileTypeHTML
	case mt == "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return FileTypeDocx
	case mt == "application/epub+zip":
		return FileTypeEpub
	case strings.HasPrefix(mt, "text/"):
		return FileTypeText
	case strings.HasPrefix(mt, "image/"):
		return FileTypeImage
	case strings.HasPrefix(mt, "audio/"):
		return FileTypeAudio
	case strings.HasPrefix(mt, "video/"):
		return FileTypeVideo
	}
	// Some browsers upload markdown and friends as octet-stream; fall back
	// to the extension before giving up.
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return FileTypePDF
	case ".md", ".markdown":
		return FileTypeMarkdown
	case ".html", ".htm":
		return FileTypeHTML
	case ".txt":
		return FileTypeText
	case ".docx":
		return FileTypeDocx
	case ".epub":
		return FileTypeEpub
	}
	return FileTypeUnknown
}

// CanViewInline reports whether the browser can render the type directly.
func CanViewInline(fileType string) bool {
	switch fileType {
	case FileTypePDF, FileTypeText, FileTypeMarkdown, FileTypeHTML,
		FileTypeImage, FileTypeAudio, FileTypeVideo:
		return true
	}
	return false
}

// DownloadOnly types are supported but not rendered inline.
func DownloadOnly(fileType string) bool {
	switch fileType {
	case FileTypeDocx, FileTypeEpub:
		return true
	}
	return false
}

// Unsupported is everything outside the inline and download-only sets.
func Unsupported(fileType string) bool {
	return !CanViewInline(fileType) && !DownloadOnly(fileType)
}

package constants

import "strings"

// Format is the extraction strategy a file extension maps to.
type Format string

const (
	TEXT  Format = "TEXT"
	PDF   Format = "PDF"
	DOCX  Format = "DOCX"
	CSV   Format = "CSV"
	IMAGE Format = "IMAGE"
	XLSX  Format = "XLSX"
)

const (
	// MaxUploadBytes is the per-file upload limit.
	MaxUploadBytes = 10 << 20
	// MaxBatchFiles caps the number of files accepted in one batch.
	MaxBatchFiles = 10
)

var extFormats = map[string]Format{
	"txt":  TEXT,
	"md":   TEXT,
	"pdf":  PDF,
	"docx": DOCX,
	"csv":  CSV,
	"png":  IMAGE,
	"jpg":  IMAGE,
	"jpeg": IMAGE,
	"xlsx": XLSX,
}

// AllowedContentTypes is the upload allow-list. application/octet-stream is
// accepted separately when the filename ends in .csv.
var AllowedContentTypes = map[string]struct{}{
	"text/plain":      {},
	"text/csv":        {},
	"text/markdown":   {},
	"application/pdf": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       {},
	"image/png":  {},
	"image/jpeg": {},
	"image/jpg":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns the strategy for an extension, or "" if unsupported.
func MapExtToFormat(ext string) Format {
	return extFormats[NormalizeExt(ext)]
}

// IsAllowedExt reports whether files with this extension can be extracted.
func IsAllowedExt(ext string) bool {
	_, ok := extFormats[NormalizeExt(ext)]
	return ok
}

// SupportedExtensions lists the extensions known to the dispatcher, dotted.
func SupportedExtensions() []string {
	return []string{".txt", ".md", ".pdf", ".docx", ".csv", ".png", ".jpg", ".jpeg", ".xlsx"}
}

// IsAllowedContentType checks an upload's declared type. Generic binary uploads
// are let through only when the filename says CSV.
func IsAllowedContentType(contentType, filename string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if _, ok := AllowedContentTypes[ct]; ok {
		return true
	}
	return ct == "application/octet-stream" && strings.HasSuffix(strings.ToLower(filename), ".csv")
}

var extContentTypes = map[string]string{
	"txt":  "text/plain",
	"md":   "text/markdown",
	"pdf":  "application/pdf",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"csv":  "text/csv",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
}

// ContentTypeForExt is the upload type local files are declared with.
func ContentTypeForExt(ext string) string {
	if ct, ok := extContentTypes[NormalizeExt(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}

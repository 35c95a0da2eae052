package scanner

// FileType classifies files for metadata and chunking decisions.
type FileType string

const (
	FileTypeCode     FileType = "code"
	FileTypeDocument FileType = "document"
	FileTypeConfig   FileType = "config"
	FileTypeData     FileType = "data"
	FileTypeBinary   FileType = "binary"
	FileTypeUnknown  FileType = "unknown"
)

// FileInfo describes a file the scanner decided to emit.
type FileInfo struct {
	// RelPath is the repo-relative path with forward slashes.
	RelPath string
	// AbsPath is the absolute path on disk.
	AbsPath string
	// Type is the coarse file classification.
	Type FileType
	// Language is the programming language tag, empty when unknown.
	Language string
	// Extension is the lowercased file extension including the dot.
	Extension string
	// Size is the file size in bytes.
	Size int64
}

// Result is one item streamed from Scan. Either Info is populated or
// Err describes why a file could not be inspected.
type Result struct {
	Info FileInfo
	Err  error
}

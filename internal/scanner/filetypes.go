package scanner

import (
	"path/filepath"
	"strings"
)

type classification struct {
	fileType FileType
	language string
}

// extClassification maps extensions to a file type and language tag.
var extClassification = map[string]classification{
	// code
	".py":    {FileTypeCode, "python"},
	".js":    {FileTypeCode, "javascript"},
	".jsx":   {FileTypeCode, "javascript"},
	".vue":   {FileTypeCode, "javascript"},
	".ts":    {FileTypeCode, "typescript"},
	".tsx":   {FileTypeCode, "typescript"},
	".java":  {FileTypeCode, "java"},
	".cpp":   {FileTypeCode, "cpp"},
	".cxx":   {FileTypeCode, "cpp"},
	".cc":    {FileTypeCode, "cpp"},
	".hpp":   {FileTypeCode, "cpp"},
	".c":     {FileTypeCode, "cpp"},
	".h":     {FileTypeCode, "cpp"},
	".cs":    {FileTypeCode, "csharp"},
	".go":    {FileTypeCode, "go"},
	".rs":    {FileTypeCode, "rust"},
	".php":   {FileTypeCode, "php"},
	".rb":    {FileTypeCode, "ruby"},
	".swift": {FileTypeCode, "swift"},
	".kt":    {FileTypeCode, "kotlin"},
	".scala": {FileTypeCode, "scala"},
	".clj":   {FileTypeCode, "clojure"},
	".sh":    {FileTypeCode, "shell"},
	".sql":   {FileTypeCode, "sql"},
	".html":  {FileTypeCode, "html"},
	".css":   {FileTypeCode, "css"},

	// documents
	".md":   {FileTypeDocument, ""},
	".txt":  {FileTypeDocument, ""},
	".rst":  {FileTypeDocument, ""},
	".adoc": {FileTypeDocument, ""},

	// config
	".json":          {FileTypeConfig, ""},
	".yaml":          {FileTypeConfig, ""},
	".yml":           {FileTypeConfig, ""},
	".toml":          {FileTypeConfig, ""},
	".ini":           {FileTypeConfig, ""},
	".cfg":           {FileTypeConfig, ""},
	".conf":          {FileTypeConfig, ""},
	".env":           {FileTypeConfig, ""},
	".xml":           {FileTypeConfig, ""},
	".gitignore":     {FileTypeConfig, ""},
	".gitattributes": {FileTypeConfig, ""},
}

// specialNames classifies well-known extensionless files by basename
// prefix (case-insensitive).
var specialNames = map[string]classification{
	"dockerfile": {FileTypeConfig, ""},
	"makefile":   {FileTypeConfig, ""},
	"readme":     {FileTypeDocument, ""},
	"license":    {FileTypeDocument, ""},
	"changelog":  {FileTypeDocument, ""},
}

// binaryExtensions are never ingested regardless of the allow-list.
var binaryExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".svg": {}, ".ico": {},
	".mp3": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".wav": {}, ".zip": {}, ".tar": {}, ".gz": {},
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {}, ".jar": {}, ".class": {}, ".pyc": {},
	".o": {}, ".obj": {}, ".lib": {}, ".a": {}, ".bin": {}, ".dat": {},
}

// Classify returns the file type and language tag for a path.
func Classify(path string) (FileType, string) {
	base := strings.ToLower(filepath.Base(path))
	ext := strings.ToLower(filepath.Ext(base))

	if _, ok := binaryExtensions[ext]; ok {
		return FileTypeBinary, ""
	}
	if c, ok := extClassification[ext]; ok {
		return c.fileType, c.language
	}
	for prefix, c := range specialNames {
		if strings.HasPrefix(base, prefix) {
			return c.fileType, c.language
		}
	}
	return FileTypeUnknown, ""
}

// IsBinaryExtension reports whether the extension is hard-blocked.
func IsBinaryExtension(ext string) bool {
	_, ok := binaryExtensions[strings.ToLower(ext)]
	return ok
}

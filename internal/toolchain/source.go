package toolchain

import (
	"bytes"
	"path/filepath"
	"strings"
)

const (
	SourceTypeRMarkdown = "rmarkdown"

	// documents carrying this comment keep the legacy markdown renderer
	legacyMarker = "<!-- rmarkdown v1 -->"
)

// SourceType returns SourceTypeRMarkdown for .Rmd and .md documents which are
// rendered through rmarkdown, an empty string otherwise.
func SourceType(path string, contents []byte) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rmd", ".md":
	default:
		return ""
	}
	if bytes.Contains(bytes.ToLower(contents), []byte(legacyMarker)) {
		return ""
	}
	return SourceTypeRMarkdown
}

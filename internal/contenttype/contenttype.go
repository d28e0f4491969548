// Package contenttype resolves a content type for a fetched object,
// following the fallback order store-provided → extension table → magic
// sniffing → application/octet-stream.
package contenttype

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Default is served when nothing in the chain resolves a type.
const Default = "application/octet-stream"

// sniffPrefixBytes bounds how much of the body magic-number sniffing reads;
// it must never read the whole object.
const sniffPrefixBytes = 512

// Resolve implements the chain from spec §4.5/§9. storeProvided is the
// content type reported by the store adapter, if any; it is returned as
// given. Types from the extension table or sniffing have parameters such as
// charset removed.
func Resolve(storeProvided, path string, body []byte) string {
	if storeProvided != "" {
		return storeProvided
	}

	if ext := filepath.Ext(path); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return stripParams(t)
		}
	}

	prefix := body
	if len(prefix) > sniffPrefixBytes {
		prefix = prefix[:sniffPrefixBytes]
	}
	if len(prefix) > 0 {
		if t := mimetype.Detect(prefix); t != nil {
			return stripParams(t.String())
		}
	}

	return Default
}

func stripParams(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		return strings.TrimSpace(contentType[:i])
	}
	return contentType
}

package cli

import (
	"mime"
	"net/http"
	"path/filepath"
)

// detectContentType prefers the file extension and falls back to
// content sniffing, so .txt files do not sniff as octet-stream.
func detectContentType(path string, data []byte) string {
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	return http.DetectContentType(data)
}

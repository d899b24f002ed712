package tool

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/moyoez/submitsession/types"
)

// ResolveFileRef stats a local path (plain or file:// URL) and fills name, size and mime type.
func ResolveFileRef(pathOrURL string) (types.FileRef, error) {
	filePath := pathOrURL
	if strings.HasPrefix(pathOrURL, "file://") {
		parsedUrl, err := url.Parse(pathOrURL)
		if err != nil {
			return types.FileRef{}, fmt.Errorf("invalid file url: %v", err)
		}
		filePath = parsedUrl.Path
	}
	if filePath == "" {
		return types.FileRef{}, fmt.Errorf("file path is required")
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return types.FileRef{}, fmt.Errorf("failed to stat file: %v", err)
	}
	if fileInfo.IsDir() {
		return types.FileRef{}, fmt.Errorf("path is a directory, not a file")
	}

	return types.FileRef{
		Path:     filePath,
		Name:     filepath.Base(filePath),
		Size:     fileInfo.Size(),
		MimeType: DetectMimeType(filePath),
	}, nil
}

// DetectMimeType guesses the MIME type from the file extension.
func DetectMimeType(name string) string {
	fileType := mime.TypeByExtension(filepath.Ext(name))
	if fileType == "" {
		fileType = "application/octet-stream"
	}
	return fileType
}

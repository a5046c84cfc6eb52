// Package publish uploads finished documents to shared storage.
package publish

import (
	"context"
	"path/filepath"
	"strings"
)

// Publisher uploads a finished local file under a name and returns where it
// can be fetched from.
type Publisher interface {
	Publish(ctx context.Context, localPath, name string) (url string, err error)
}

// Content types for the documents this module produces.
const (
	ContentTypeSpreadsheet = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV         = "text/csv"
	ContentTypeOctetStream = "application/octet-stream"
)

// ContentTypeFor guesses a content type from the file extension.
func ContentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		return ContentTypeSpreadsheet
	case ".csv", ".tsv", ".txt":
		return ContentTypeCSV
	default:
		return ContentTypeOctetStream
	}
}

// Info describes a published document.
type Info struct {
	Name        string
	Size        int64
	ContentType string
	URL         string
}

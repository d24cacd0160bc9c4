package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/aminssutt/AurisTraining/internal/api"
)

// Selection is the ordered list of files picked for upload.
// Files with the same name are kept as separate entries.
type Selection struct {
	files []api.File
}

// Add appends every PDF in files, in order. Non-PDF files are dropped and
// reported together in a single validation error; the PDFs are still added.
func (s *Selection) Add(files ...api.File) error {
	var rejected []string
	for _, f := range files {
		if f.ContentType != api.PDFContentType {
			rejected = append(rejected, f.Name)
			continue
		}
		s.files = append(s.files, f)
	}
	if len(rejected) > 0 {
		return &api.ValidationError{
			Kind:    api.UnsupportedType,
			Message: "only PDF files are accepted (rejected: " + strings.Join(rejected, ", ") + ")",
		}
	}
	return nil
}

// Remove drops the file at index i. Out of range indexes are ignored.
func (s *Selection) Remove(i int) {
	if i < 0 || i >= len(s.files) {
		return
	}
	s.files = append(s.files[:i:i], s.files[i+1:]...)
}

// Files returns a copy of the selected files in display order.
func (s *Selection) Files() []api.File {
	out := make([]api.File, len(s.files))
	copy(out, s.files)
	return out
}

func (s *Selection) Len() int { return len(s.files) }

// Clear empties the selection.
func (s *Selection) Clear() { s.files = nil }

// LocalFile describes a file on disk. The content type is sniffed from the
// file header, so a renamed text file is not mistaken for a PDF.
func LocalFile(path string) (api.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return api.File{}, err
	}
	if info.IsDir() {
		return api.File{}, fmt.Errorf("%s is a directory", path)
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return api.File{}, fmt.Errorf("failed to detect type of %s: %w", path, err)
	}
	contentType := mt.String()
	if mt.Is(api.PDFContentType) {
		contentType = api.PDFContentType
	}
	return api.File{
		Name:        filepath.Base(path),
		Size:        info.Size(),
		ContentType: contentType,
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FormatSize renders a byte count the way the file list shows it.
func FormatSize(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}

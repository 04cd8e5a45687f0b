// Package upload validates incoming PDF uploads and keeps them as temporary
// artifacts until the request that owns them releases them.
package upload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultMaxBytes = 10 << 20

var (
	ErrEmpty    = errors.New("upload: empty file")
	ErrTooLarge = errors.New("upload: file too large")
	ErrNotPDF   = errors.New("upload: only PDF files are accepted")
	ErrBadRef   = errors.New("upload: invalid artifact reference")
)

// File is one accepted upload. Ref identifies the temporary artifact for
// Release; Data holds the validated bytes.
type File struct {
	Ref          string
	Path         string
	OriginalName string
	Size         int64
	Data         []byte
}

type Store struct {
	dir      string
	maxBytes int64
	log      *zap.SugaredLogger
}

// NewStore creates dir if needed. An empty dir uses the OS temp directory.
func NewStore(dir string, maxBytes int64, log *zap.SugaredLogger) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "docanalysis-uploads")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("upload: create dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes, log: log}, nil
}

func (s *Store) MaxBytes() int64 { return s.maxBytes }

// SaveMultipart validates and stores a multipart file field.
func (s *Store) SaveMultipart(fh *multipart.FileHeader) (File, error) {
	if fh == nil {
		return File{}, ErrEmpty
	}
	if fh.Size > s.maxBytes {
		return File{}, ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return File{}, fmt.Errorf("upload: open part: %w", err)
	}
	defer f.Close()
	return s.Save(fh.Filename, f)
}

// Save reads r fully, checks it is a PDF within the size limit and writes it
// to a uniquely named file.
func (s *Store) Save(originalName string, r io.Reader) (File, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return File{}, fmt.Errorf("upload: read: %w", err)
	}
	if len(data) == 0 {
		return File{}, ErrEmpty
	}
	if int64(len(data)) > s.maxBytes {
		return File{}, ErrTooLarge
	}
	if !IsPDF(data) {
		return File{}, ErrNotPDF
	}

	ref := uuid.NewString() + ".pdf"
	path := filepath.Join(s.dir, ref)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return File{}, fmt.Errorf("upload: write: %w", err)
	}

	s.log.Debugw("upload.saved", "ref", ref, "size", len(data))
	return File{
		Ref:          ref,
		Path:         path,
		OriginalName: cleanName(originalName),
		Size:         int64(len(data)),
		Data:         data,
	}, nil
}

// Release deletes the temporary artifact. Releasing twice is not an error.
func (s *Store) Release(ref string) error {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return ErrBadRef
	}
	err := os.Remove(filepath.Join(s.dir, ref))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("upload: release %s: %w", ref, err)
	}
	s.log.Debugw("upload.released", "ref", ref)
	return nil
}

// IsPDF checks the magic header and the sniffed content type.
func IsPDF(data []byte) bool {
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return false
	}
	return http.DetectContentType(data) == "application/pdf"
}

func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == "/" {
		return "document.pdf"
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}

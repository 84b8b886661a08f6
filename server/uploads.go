package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const maxDedupAttempts = 10000

// handleUpload stores the multipart "file" field under the upload directory.
// A taken name gets a _1, _2, ... suffix before the extension.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.Server.MaxUploadBytes
	maxBody := limit + (1 << 20) // room for multipart framing
	if r.ContentLength > maxBody {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	if header.Size > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(header.Filename, `\`, "/")))
	if name == "/" || name == "." || name == "" {
		writeError(w, http.StatusUnprocessableEntity, "invalid file name")
		return
	}

	dir := s.cfg.Server.UploadDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.writeServiceError(w, r, fmt.Errorf("create upload dir: %w", err))
		return
	}

	out, stored, err := createUnique(dir, name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if _, err := io.Copy(out, io.LimitReader(file, limit+1)); err != nil {
		out.Close()
		os.Remove(filepath.Join(dir, stored))
		s.writeServiceError(w, r, fmt.Errorf("write upload: %w", err))
		return
	}
	if err := out.Close(); err != nil {
		s.writeServiceError(w, r, fmt.Errorf("close upload: %w", err))
		return
	}

	s.logger.Info("file uploaded", "name", stored, "bytes", header.Size)
	writeJSON(w, http.StatusOK, map[string]string{"url": "/uploads/" + stored})
}

// createUnique exclusively creates name in dir, or the first free
// name_N.ext variant.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; i <= maxDedupAttempts; i++ {
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, candidate, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create upload: %w", err)
		}
		candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
	return nil, "", fmt.Errorf("no free name for upload %q", name)
}

// handleServeUpload serves stored files.
func (s *Server) handleServeUpload(w http.ResponseWriter, r *http.Request) {
	fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.cfg.Server.UploadDir)))
	fs.ServeHTTP(w, r)
}

package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/taskforge/taskforge/config"
)

func multipartBody(t *testing.T, field, name string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	fw.Write(content) //nolint:errcheck
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, e *testEnv, field, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, field, name, content)
	req := httptest.NewRequest(http.MethodPost, "/uploads/", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestUploadDedupAndServe(t *testing.T) {
	e := newTestEnv(t, nil)

	var urls []string
	for i := 0; i < 3; i++ {
		rec := upload(t, e, "file", "shot.png", []byte("png-bytes"))
		if rec.Code != http.StatusOK {
			t.Fatalf("upload #%d status = %d, body %s", i, rec.Code, rec.Body)
		}
		urls = append(urls, decode[map[string]string](t, rec)["url"])
	}
	want := []string{"/uploads/shot.png", "/uploads/shot_1.png", "/uploads/shot_2.png"}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("url[%d] = %q, want %q", i, urls[i], want[i])
		}
	}

	rec := e.do(t, http.MethodGet, "/uploads/shot_1.png", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "png-bytes" {
		t.Errorf("serve = %d %q", rec.Code, rec.Body)
	}
}

func TestUploadStripsDirectories(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := upload(t, e, "file", "../../etc/passwd", []byte("x"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if url := decode[map[string]string](t, rec)["url"]; url != "/uploads/passwd" {
		t.Errorf("url = %q, want /uploads/passwd", url)
	}
	if _, err := os.Stat(filepath.Join(e.cfg.Server.UploadDir, "passwd")); err != nil {
		t.Errorf("file not stored in upload dir: %v", err)
	}
}

func TestUploadErrors(t *testing.T) {
	e := newTestEnv(t, func(c *config.Config) { c.Server.MaxUploadBytes = 16 })

	if rec := upload(t, e, "other", "a.txt", []byte("x")); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("wrong field status = %d, want 422", rec.Code)
	}
	if rec := upload(t, e, "file", "big.bin", bytes.Repeat([]byte("a"), 64)); rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized status = %d, want 413", rec.Code)
	}
}

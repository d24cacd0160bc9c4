package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/aminssutt/AurisTraining/internal/session"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL + "/api")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func pdfFile(name, content string) File {
	return File{
		Name:        name,
		Size:        int64(len(content)),
		ContentType: PDFContentType,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func TestCreateSession_TrimsName(t *testing.T) {
	var got CreateSessionRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/session/create" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"session": map[string]any{"id": "s1", "vehicle_name": got.VehicleName, "status": "created"},
		})
	}))

	sess, err := c.CreateSession(context.Background(), "  Toyota Auris Hybride 2015 ")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if got.VehicleName != "Toyota Auris Hybride 2015" {
		t.Errorf("expected trimmed name, got %q", got.VehicleName)
	}
	if sess.ID != "s1" || sess.Status != session.StatusCreated {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestCreateSession_EmptyNameMakesNoCall(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	_, err := c.CreateSession(context.Background(), "   ")
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("expected no request, got %d", calls)
	}
}

func TestUploadFile_SendsMultipartFileField(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/session/abc/upload" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "no file"})
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "manual.pdf" || string(data) != "%PDF-1.4 body" {
			t.Errorf("unexpected upload %q %q", hdr.Filename, data)
		}
		if ct := hdr.Header.Get("Content-Type"); ct != PDFContentType {
			t.Errorf("expected part content type %s, got %s", PDFContentType, ct)
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}))

	if err := c.UploadFile(context.Background(), "abc", pdfFile("manual.pdf", "%PDF-1.4 body")); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
}

func TestUploadFile_RejectsBeforeTransmission(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))

	notPDF := pdfFile("notes.txt", "hello")
	notPDF.ContentType = "text/plain"

	err := c.UploadFile(context.Background(), "abc", notPDF)
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Kind != UnsupportedType {
		t.Errorf("expected %s validation error, got %v", UnsupportedType, err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Errorf("expected no request, got %d", calls)
	}
}

func TestUploadFile_SizeCeilingIsDecidedByServer(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		io.Copy(io.Discard, r.Body)
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"success": false, "error": "File exceeds 50 MB"})
	}))

	huge := pdfFile("huge.pdf", "%PDF-1.4 body")
	huge.Size = 51 << 20
	if !OverSizeHint(huge) {
		t.Fatal("expected the size hint for a 51 MB file")
	}

	err := c.UploadFile(context.Background(), "abc", huge)
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected the upload to be sent, got %d requests", calls)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Kind != SizeExceeded {
		t.Fatalf("expected %s from the server refusal, got %v", SizeExceeded, err)
	}
	if got := UserMessage(err); got != "huge.pdf: File exceeds 50 MB" {
		t.Errorf("expected the server text for the file, got %q", got)
	}
}

func TestGetStatus_ErrorShapes(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		check   func(error) bool
		message string
	}{
		{
			name:    "server reported failure",
			code:    http.StatusOK,
			body:    `{"success": false, "error": "index missing"}`,
			check:   func(err error) bool { var se *ServerError; return errors.As(err, &se) && se.Message == "index missing" },
			message: "index missing",
		},
		{
			name:  "http 404",
			code:  http.StatusNotFound,
			body:  `{"success": false, "error": "Session introuvable"}`,
			check: func(err error) bool { return errors.Is(err, ErrNotFound) },
		},
		{
			name:  "success false naming a missing session",
			code:  http.StatusOK,
			body:  `{"success": false, "error": "Session not found"}`,
			check: func(err error) bool { var nf *NotFoundError; return errors.As(err, &nf) && errors.Is(err, ErrNotFound) },
		},
		{
			name:  "success false in french",
			code:  http.StatusBadRequest,
			body:  `{"success": false, "error": "Session abc introuvable"}`,
			check: func(err error) bool { return errors.Is(err, ErrNotFound) },
		},
		{
			name:  "malformed json",
			code:  http.StatusOK,
			body:  `{"success": tru`,
			check: func(err error) bool { var te *TransportError; return errors.As(err, &te) },
		},
		{
			name:  "missing success flag",
			code:  http.StatusOK,
			body:  `{"session": {"id": "abc", "status": "ready"}}`,
			check: func(err error) bool { var te *TransportError; return errors.As(err, &te) },
		},
		{
			name:  "unknown status",
			code:  http.StatusOK,
			body:  `{"success": true, "session": {"id": "abc", "status": "finished"}}`,
			check: func(err error) bool { var te *TransportError; return errors.As(err, &te) },
		},
		{
			name:  "missing session",
			code:  http.StatusOK,
			body:  `{"success": true}`,
			check: func(err error) bool { var te *TransportError; return errors.As(err, &te) },
		},
		{
			name:  "html error page",
			code:  http.StatusInternalServerError,
			body:  `<html>boom</html>`,
			check: func(err error) bool { var te *TransportError; return errors.As(err, &te) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				io.WriteString(w, tt.body)
			}))
			_, err := c.GetStatus(context.Background(), "abc")
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error %T: %v", err, err)
			}
			if tt.message != "" && UserMessage(err) != tt.message {
				t.Errorf("expected verbatim message %q, got %q", tt.message, UserMessage(err))
			}
		})
	}
}

func TestGetStatus_DecodesPythonRecord(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success": true, "session": {
			"id": "abc", "vehicle_name": "Auris", "created_at": "2025-01-02T10:11:12.123456",
			"pdf_files": ["a.pdf"], "status": "processing", "progress": 30,
			"message": "Extraction: 4/10 pages", "current_step": "extraction",
			"total_pages": 10, "processed_pages": 4, "error": null}}`)
	}))
	sess, err := c.GetStatus(context.Background(), "abc")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if sess.CurrentStep != session.StepExtraction || sess.ProcessedPages != 4 || sess.TotalPages != 10 {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url + "/api")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.GetStatus(context.Background(), "abc")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if UserMessage(err) != "Unable to reach the server" {
		t.Errorf("unexpected user message %q", UserMessage(err))
	}
}

func TestSendChatMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/api/session/abc/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "response": "Answer to " + req.Message})
	}))

	got, err := c.SendChatMessage(context.Background(), "abc", "Quelle est la pression des pneus ?")
	if err != nil {
		t.Fatalf("SendChatMessage: %v", err)
	}
	if got != "Answer to Quelle est la pression des pneus ?" {
		t.Errorf("unexpected answer %q", got)
	}

	if _, err := c.SendChatMessage(context.Background(), "abc", " \n"); err == nil {
		t.Error("expected validation error for blank message")
	}
}

func TestStartProcessing_AcceptsAnyBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, "started")
	}))
	if err := c.StartProcessing(context.Background(), "abc"); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
}

func TestNew_RejectsBadURL(t *testing.T) {
	if _, err := New("localhost:5000/api"); err == nil {
		t.Error("expected error for url without scheme")
	}
}

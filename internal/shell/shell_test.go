package shell_test

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aminssutt/AurisTraining/internal/api"
	"github.com/aminssutt/AurisTraining/internal/shell"
	"github.com/aminssutt/AurisTraining/internal/stubapi"
)

func setup(t *testing.T) *api.Client {
	t.Helper()
	stub := stubapi.New(stubapi.Options{Tick: time.Millisecond, PagesPerFile: 2})
	ts := httptest.NewServer(stub.Handler())
	t.Cleanup(func() {
		ts.Close()
		stub.Close()
	})
	client, err := api.New(ts.URL + "/api")
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func writePDF(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestShell_SetupWatchChat(t *testing.T) {
	client := setup(t)
	in := strings.NewReader("Quelle est la pression des pneus ?\n/status\n/bogus\n/new\nn\n/quit\n")
	var out bytes.Buffer
	sh := shell.New(client, shell.Options{In: in, Out: &out, PollInterval: time.Millisecond, HandoffDelay: time.Millisecond})
	ctx := context.Background()

	id, err := sh.Setup(ctx, "Toyota Auris Hybride 2015", []string{writePDF(t, "manual.pdf")})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if _, err := sh.Watch(ctx, id); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if err := sh.Chat(ctx, id); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"✓ manual.pdf",
		"[100%]",
		"✓ Ready",
		"Assistant:",
		"Toyota Auris Hybride 2015",
		"Status:   ready (100%)",
		"Files:    manual.pdf",
		"unknown command: /bogus",
		"Goodbye!",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q\n%s", want, got)
		}
	}
	if strings.Contains(got, "**") {
		t.Errorf("markdown delimiters leaked into output:\n%s", got)
	}
}

func TestShell_SetupRejectsNonPDF(t *testing.T) {
	client := setup(t)
	sh := shell.New(client, shell.Options{})

	path := filepath.Join(t.TempDir(), "notes.pdf")
	if err := os.WriteFile(path, []byte("plain text pretending"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := sh.Setup(context.Background(), "Auris", []string{path})
	var ve *api.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestShell_ChatUnknownSession(t *testing.T) {
	client := setup(t)
	sh := shell.New(client, shell.Options{})
	if err := sh.Chat(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestShell_WatchProcessingError(t *testing.T) {
	client := setup(t)
	ctx := context.Background()
	sess, err := client.CreateSession(ctx, "Auris")
	if err != nil {
		t.Fatal(err)
	}
	if err := client.StartProcessing(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}

	sh := shell.New(client, shell.Options{PollInterval: time.Millisecond})
	if _, err := sh.Watch(ctx, sess.ID); !errors.Is(err, shell.ErrProcessingFailed) {
		t.Errorf("expected processing failure, got %v", err)
	}
}

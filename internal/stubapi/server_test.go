package stubapi_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aminssutt/AurisTraining/internal/api"
	"github.com/aminssutt/AurisTraining/internal/conversation"
	"github.com/aminssutt/AurisTraining/internal/progress"
	"github.com/aminssutt/AurisTraining/internal/route"
	"github.com/aminssutt/AurisTraining/internal/session"
	"github.com/aminssutt/AurisTraining/internal/stubapi"
	"github.com/aminssutt/AurisTraining/internal/upload"
)

func newStub(t *testing.T, opts stubapi.Options) (*stubapi.Server, *api.Client) {
	t.Helper()
	if opts.Tick == 0 {
		opts.Tick = 2 * time.Millisecond
	}
	stub := stubapi.New(opts)
	ts := httptest.NewServer(stub.Handler())
	t.Cleanup(func() {
		ts.Close()
		stub.Close()
	})

	client, err := api.New(ts.URL + "/api")
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	return stub, client
}

func pdfFile(name string) api.File {
	body := "%PDF-1.4 " + name
	return api.File{
		Name:        name,
		Size:        int64(len(body)),
		ContentType: api.PDFContentType,
		Open:        func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader(body)), nil },
	}
}

func TestFullFlow_UploadProcessChat(t *testing.T) {
	_, client := newStub(t, stubapi.Options{})
	ctx := context.Background()

	res, err := upload.New(client, slog.New(slog.DiscardHandler)).Run(ctx, "Toyota Auris Hybride 2015",
		[]api.File{pdfFile("a.pdf"), pdfFile("b.pdf")}, nil)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if res.ProcessErr != nil {
		t.Fatalf("process trigger: %v", res.ProcessErr)
	}
	id := res.Session.ID

	if r := route.EnterChat(ctx, client, id); r.Kind != route.Processing {
		t.Errorf("chat gate before ready = %s, want processing", r.Kind)
	}

	mon := progress.New(client, id, progress.Options{Interval: 2 * time.Millisecond, HandoffDelay: time.Millisecond})
	done := make(chan progress.Update, 1)
	go func() { done <- mon.Run(ctx) }()

	lastProgress := -1
	for u := range mon.Updates() {
		if u.Session != nil {
			if u.Session.Progress < lastProgress {
				t.Errorf("progress went back from %d to %d", lastProgress, u.Session.Progress)
			}
			lastProgress = u.Session.Progress
		}
	}
	final := <-done
	if final.State != progress.HandedOff || final.Session.Progress != 100 {
		t.Fatalf("unexpected final update %+v", final)
	}
	if final.Session.TotalPages != 6 || len(final.Session.PDFFiles) != 2 {
		t.Errorf("unexpected session record %+v", final.Session)
	}

	r := route.EnterChat(ctx, client, id)
	if r.Kind != route.Chat {
		t.Fatalf("chat gate after ready = %s", r.Kind)
	}

	conv := conversation.New(client, id, conversation.Options{})
	conv.Send(ctx, "Quelle est la pression des pneus ?")
	conv.Wait()
	turns := conv.Turns()
	if len(turns) != 2 || turns[1].Role != session.RoleAssistant {
		t.Fatalf("unexpected turns %+v", turns)
	}
	if !strings.Contains(turns[1].Content, "Toyota Auris Hybride 2015") {
		t.Errorf("answer should mention the vehicle: %q", turns[1].Content)
	}
}

func TestChat_ServerErrorIsVerbatim(t *testing.T) {
	_, client := newStub(t, stubapi.Options{
		Answer: func(session.Session, string) (string, error) { return "", errors.New("index missing") },
	})
	ctx := context.Background()

	res, err := upload.New(client, slog.New(slog.DiscardHandler)).Run(ctx, "Auris", []api.File{pdfFile("a.pdf")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	mon := progress.New(client, res.Session.ID, progress.Options{Interval: 2 * time.Millisecond})
	go func() {
		for range mon.Updates() {
		}
	}()
	if final := mon.Run(ctx); final.State != progress.HandedOff {
		t.Fatalf("expected handoff, got %+v", final)
	}

	conv := conversation.New(client, res.Session.ID, conversation.Options{})
	conv.Send(ctx, "Quelle est la pression des pneus ?")
	conv.Wait()
	turns := conv.Turns()
	if len(turns) != 2 || turns[1].Role != session.RoleError || turns[1].Content != "index missing" {
		t.Errorf("unexpected turns %+v", turns)
	}
}

func TestProcessingWithoutFilesEndsInError(t *testing.T) {
	_, client := newStub(t, stubapi.Options{})
	ctx := context.Background()

	sess, err := client.CreateSession(ctx, "Auris")
	if err != nil {
		t.Fatal(err)
	}
	if err := client.StartProcessing(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}

	mon := progress.New(client, sess.ID, progress.Options{Interval: 2 * time.Millisecond})
	go func() {
		for range mon.Updates() {
		}
	}()
	final := mon.Run(ctx)
	if final.State != progress.Errored || final.Err == "" {
		t.Errorf("expected errored state with message, got %+v", final)
	}
	if final.Session == nil || final.Session.Progress != 0 {
		t.Errorf("error status should report progress 0, got %+v", final.Session)
	}
}

func TestUnknownSession(t *testing.T) {
	_, client := newStub(t, stubapi.Options{})
	ctx := context.Background()

	_, err := client.GetStatus(ctx, "does-not-exist")
	if !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if r := route.EnterChat(ctx, client, "does-not-exist"); r.Kind != route.NotFound {
		t.Errorf("expected not found route, got %s", r.Kind)
	}

	mon := progress.New(client, "does-not-exist", progress.Options{Interval: time.Millisecond})
	go func() {
		for range mon.Updates() {
		}
	}()
	if final := mon.Run(ctx); !final.NotFound {
		t.Errorf("monitor should report not found, got %+v", final)
	}
}

func TestChatBeforeReadyIsRejected(t *testing.T) {
	_, client := newStub(t, stubapi.Options{Tick: time.Hour})
	ctx := context.Background()

	sess, err := client.CreateSession(ctx, "Auris")
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.SendChatMessage(ctx, sess.ID, "hello")
	var se *api.ServerError
	if !errors.As(err, &se) || se.Message != "Session is not ready yet" {
		t.Errorf("expected server error, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	_, client := newStub(t, stubapi.Options{})
	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health: %v", err)
	}
}

func TestCreateRejectsBlankName(t *testing.T) {
	stub := stubapi.New(stubapi.Options{})
	defer stub.Close()
	ts := httptest.NewServer(stub.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/session/create", "application/json", strings.NewReader(`{"vehicle_name":"  "}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("blank vehicle name: status %d, want 400", resp.StatusCode)
	}
}

func TestProcessAfterCloseIsRefused(t *testing.T) {
	stub, client := newStub(t, stubapi.Options{Tick: time.Hour})
	ctx := context.Background()

	sess, err := client.CreateSession(ctx, "Auris")
	if err != nil {
		t.Fatal(err)
	}
	if err := client.UploadFile(ctx, sess.ID, pdfFile("manual.pdf")); err != nil {
		t.Fatal(err)
	}
	stub.Close()

	err = client.StartProcessing(ctx, sess.ID)
	var se *api.ServerError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after close, got %v", err)
	}
}

func TestCloseWhileProcessingStarts(t *testing.T) {
	stub, client := newStub(t, stubapi.Options{})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 10; i++ {
		sess, err := client.CreateSession(ctx, "Auris")
		if err != nil {
			t.Fatal(err)
		}
		if err := client.UploadFile(ctx, sess.ID, pdfFile("manual.pdf")); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, sess.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.StartProcessing(ctx, id)
		}()
	}
	closed := make(chan struct{})
	go func() {
		stub.Close()
		close(closed)
	}()
	wg.Wait()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
}

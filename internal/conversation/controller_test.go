package conversation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aminssutt/AurisTraining/internal/api"
	"github.com/aminssutt/AurisTraining/internal/session"
)

type fakeSender struct {
	mu      sync.Mutex
	calls   []string
	answer  string
	err     error
	release chan struct{}
	ctxErr  error
}

func (f *fakeSender) SendChatMessage(ctx context.Context, id, text string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	f.ctxErr = ctx.Err()
	f.mu.Unlock()
	return f.answer, f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func roles(turns []session.Turn) []session.Role {
	out := make([]session.Role, len(turns))
	for i, t := range turns {
		out[i] = t.Role
	}
	return out
}

func TestSend_AppendsQuestionThenAnswer(t *testing.T) {
	fs := &fakeSender{answer: "**2.3 bar** front\n- 2.1 bar rear", release: make(chan struct{})}
	c := New(fs, "s1", Options{})
	c.SetDraft("How much air in the tires?")

	if !c.SendDraft(context.Background()) {
		t.Fatal("send rejected")
	}

	// the question is visible before the answer arrives
	turns := c.Turns()
	if len(turns) != 1 || turns[0].Role != session.RoleUser || turns[0].Content != "How much air in the tires?" {
		t.Fatalf("unexpected turns %+v", turns)
	}
	if !c.InFlight() || c.Draft() != "" {
		t.Errorf("expected in flight with cleared draft, got inFlight=%v draft=%q", c.InFlight(), c.Draft())
	}

	close(fs.release)
	c.Wait()

	turns = c.Turns()
	if len(turns) != 2 || turns[1].Role != session.RoleAssistant || turns[1].Content != fs.answer {
		t.Fatalf("unexpected turns %+v", turns)
	}
	if c.InFlight() {
		t.Error("in-flight flag not cleared")
	}
}

func TestSend_ServerErrorBecomesErrorTurn(t *testing.T) {
	fs := &fakeSender{err: &api.ServerError{Op: "session.chat", Message: "index missing"}}
	c := New(fs, "s1", Options{})

	c.Send(context.Background(), "Quelle est la pression des pneus ?")
	c.Wait()

	turns := c.Turns()
	want := []session.Role{session.RoleUser, session.RoleError}
	if len(turns) != 2 || roles(turns)[0] != want[0] || roles(turns)[1] != want[1] {
		t.Fatalf("unexpected roles %v", roles(turns))
	}
	if turns[0].Content != "Quelle est la pression des pneus ?" || turns[1].Content != "index missing" {
		t.Errorf("unexpected turns %+v", turns)
	}
	if c.InFlight() {
		t.Error("in-flight flag not cleared after error")
	}
}

func TestSend_TransportErrorUsesConnectionMessage(t *testing.T) {
	fs := &fakeSender{err: &api.TransportError{Op: "session.chat", Err: errors.New("connection refused")}}
	c := New(fs, "s1", Options{})

	c.Send(context.Background(), "hello")
	c.Wait()

	turns := c.Turns()
	if len(turns) != 2 || turns[1].Role != session.RoleError || turns[1].Content != ConnectionErrorMessage {
		t.Errorf("unexpected turns %+v", turns)
	}
}

func TestSend_Rejections(t *testing.T) {
	fs := &fakeSender{answer: "ok", release: make(chan struct{})}
	c := New(fs, "s1", Options{})

	for _, blank := range []string{"", "   ", "\n\t"} {
		if c.Send(context.Background(), blank) {
			t.Errorf("blank text %q accepted", blank)
		}
	}
	if len(c.Turns()) != 0 {
		t.Fatal("blank sends must not append turns")
	}

	if !c.Send(context.Background(), "first") {
		t.Fatal("first send rejected")
	}
	if c.Send(context.Background(), "second") {
		t.Error("second send accepted while first in flight")
	}
	close(fs.release)
	c.Wait()

	if fs.count() != 1 {
		t.Errorf("expected exactly one request, got %d", fs.count())
	}
	if got := roles(c.Turns()); len(got) != 2 {
		t.Errorf("unexpected roles %v", got)
	}
}

func TestSend_AtMostOneInFlight(t *testing.T) {
	fs := &fakeSender{answer: "ok", release: make(chan struct{})}
	c := New(fs, "s1", Options{})

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Send(context.Background(), "question") {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	close(fs.release)
	c.Wait()

	if accepted.Load() != 1 || fs.count() != 1 {
		t.Errorf("accepted %d sends and made %d requests, want 1 and 1", accepted.Load(), fs.count())
	}
}

func TestSend_CallerCancelDoesNotAbortRequest(t *testing.T) {
	fs := &fakeSender{answer: "ok", release: make(chan struct{})}
	c := New(fs, "s1", Options{})

	ctx, cancel := context.WithCancel(context.Background())
	c.Send(ctx, "question")
	cancel()
	close(fs.release)
	c.Wait()

	if fs.ctxErr != nil {
		t.Errorf("request context cancelled: %v", fs.ctxErr)
	}
	if turns := c.Turns(); len(turns) != 2 || turns[1].Role != session.RoleAssistant {
		t.Errorf("unexpected turns %+v", turns)
	}
}

func TestSend_RequestTimeout(t *testing.T) {
	fs := &fakeSender{answer: "late", release: make(chan struct{})}
	c := New(fs, "s1", Options{RequestTimeout: 5 * time.Millisecond})

	c.Send(context.Background(), "question")
	time.Sleep(20 * time.Millisecond)
	close(fs.release)
	c.Wait()

	if !errors.Is(fs.ctxErr, context.DeadlineExceeded) {
		t.Errorf("expected deadline on request context, got %v", fs.ctxErr)
	}
}

func TestOnChange(t *testing.T) {
	fs := &fakeSender{answer: "ok"}
	c := New(fs, "s1", Options{})

	var n atomic.Int32
	c.OnChange(func() { n.Add(1) })
	c.SetDraft("hi")
	c.SendDraft(context.Background())
	c.Wait()

	// draft, question, answer
	if n.Load() != 3 {
		t.Errorf("expected 3 notifications, got %d", n.Load())
	}
}

// Package stubapi is an in-memory stand-in for the session API. Processing
// is simulated on a timer so the whole client flow can run locally.
package stubapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aminssutt/AurisTraining/internal/config"
	"github.com/aminssutt/AurisTraining/internal/session"
)

// AnswerFunc produces the reply to a chat question. A non-nil error is sent
// back as success:false with the error text.
type AnswerFunc func(sess session.Session, question string) (string, error)

// Options configure the stub.
type Options struct {
	// Tick is the delay between two simulated processing steps.
	Tick time.Duration
	// PagesPerFile sets how many pages each upload pretends to hold.
	PagesPerFile int
	Answer       AnswerFunc
	Logger       *slog.Logger
}

type upload struct {
	name string
	size int64
}

type record struct {
	sess       session.Session
	uploads    []upload
	processing bool
}

// Server holds the sessions and the simulations running for them.
type Server struct {
	opts   Options
	logger *slog.Logger
	router *gin.Engine

	mu       sync.Mutex
	sessions map[string]*record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds the stub and its router.
func New(opts Options) *Server {
	if opts.Tick <= 0 {
		opts.Tick = 200 * time.Millisecond
	}
	if opts.PagesPerFile <= 0 {
		opts.PagesPerFile = 3
	}
	if opts.Answer == nil {
		opts.Answer = cannedAnswer
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*record),
		ctx:      ctx,
		cancel:   cancel,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes(router)
	s.router = router
	return s
}

// Handler exposes the router, for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops every running simulation.
func (s *Server) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, out io.Writer) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
		s.Close()
	}()

	if out != nil {
		fmt.Fprintf(out, "Stub API running at http://%s/api\n", displayAddr(addr))
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("stub api: %w", err)
	}
	return nil
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("stub request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).String(),
		)
	}
}

func (s *Server) registerRoutes(r *gin.Engine) {
	api := r.Group("/api")
	api.GET("/health", s.health)
	api.POST("/session/create", s.createSession)

	sess := api.Group("/session/:id")
	sess.POST("/upload", s.uploadFile)
	sess.POST("/process", s.startProcessing)
	sess.GET("/status", s.status)
	sess.POST("/chat", s.chat)
	sess.DELETE("", s.deleteSession)
}

func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"success": false, "error": msg})
}

func (s *Server) health(c *gin.Context) {
	s.mu.Lock()
	n := len(s.sessions)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok", "sessions": n})
}

type createRequest struct {
	VehicleName string `json:"vehicle_name"`
}

func (s *Server) createSession(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	name := strings.TrimSpace(req.VehicleName)
	if name == "" {
		fail(c, http.StatusBadRequest, "Vehicle name is required")
		return
	}

	rec := &record{sess: session.Session{
		ID:          uuid.NewString(),
		VehicleName: name,
		Status:      session.StatusCreated,
		Message:     "Session created",
		CreatedAt:   time.Now().Format("2006-01-02T15:04:05.000000"),
		PDFFiles:    []string{},
	}}
	s.mu.Lock()
	s.sessions[rec.sess.ID] = rec
	s.mu.Unlock()

	s.logger.Info("stub session created", "session_id", rec.sess.ID, "vehicle", name)
	c.JSON(http.StatusOK, gin.H{"success": true, "session": rec.sess})
}

func (s *Server) lookup(c *gin.Context) (*record, bool) {
	s.mu.Lock()
	rec, ok := s.sessions[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		fail(c, http.StatusNotFound, "Session not found")
	}
	return rec, ok
}

func (s *Server) uploadFile(c *gin.Context) {
	rec, ok := s.lookup(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "No file provided")
		return
	}
	if !strings.HasSuffix(strings.ToLower(fh.Filename), ".pdf") &&
		fh.Header.Get("Content-Type") != "application/pdf" {
		fail(c, http.StatusBadRequest, "Only PDF files are accepted")
		return
	}
	if fh.Size > config.MaxUploadBytes {
		fail(c, http.StatusRequestEntityTooLarge, "File exceeds 50 MB")
		return
	}

	s.mu.Lock()
	if rec.processing {
		s.mu.Unlock()
		fail(c, http.StatusConflict, "Session is already processing")
		return
	}
	rec.uploads = append(rec.uploads, upload{name: fh.Filename, size: fh.Size})
	rec.sess.PDFFiles = append(rec.sess.PDFFiles, fh.Filename)
	rec.sess.Status = session.StatusUploading
	rec.sess.Message = fmt.Sprintf("%d file(s) uploaded", len(rec.uploads))
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "filename": fh.Filename})
}

func (s *Server) startProcessing(c *gin.Context) {
	rec, ok := s.lookup(c)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		fail(c, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}
	if rec.processing {
		s.mu.Unlock()
		fail(c, http.StatusConflict, "Session is already processing")
		return
	}
	rec.processing = true
	pages := len(rec.uploads) * s.opts.PagesPerFile
	id := rec.sess.ID
	// Add under the lock so Close cannot start waiting in between.
	s.wg.Add(1)
	s.mu.Unlock()

	go s.simulate(id, pages)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Processing started"})
}

func (s *Server) status(c *gin.Context) {
	rec, ok := s.lookup(c)
	if !ok {
		return
	}
	s.mu.Lock()
	snap := rec.sess
	snap.PDFFiles = append([]string(nil), rec.sess.PDFFiles...)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"success": true, "session": snap})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) chat(c *gin.Context) {
	rec, ok := s.lookup(c)
	if !ok {
		return
	}
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		fail(c, http.StatusBadRequest, "Message is required")
		return
	}

	s.mu.Lock()
	snap := rec.sess
	s.mu.Unlock()
	if snap.Status != session.StatusReady {
		fail(c, http.StatusBadRequest, "Session is not ready yet")
		return
	}

	answer, err := s.opts.Answer(snap, req.Message)
	if err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "response": answer})
}

func (s *Server) deleteSession(c *gin.Context) {
	if _, ok := s.lookup(c); !ok {
		return
	}
	s.mu.Lock()
	delete(s.sessions, c.Param("id"))
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func cannedAnswer(sess session.Session, question string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n\n", sess.VehicleName)
	fmt.Fprintf(&b, "You asked: *%s*\n\n", strings.TrimSpace(question))
	b.WriteString("This is a simulated answer. Relevant documents:\n")
	for _, f := range sess.PDFFiles {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

package stubapi

import (
	"fmt"
	"time"

	"github.com/aminssutt/AurisTraining/internal/session"
)

// stage is one observable state of a simulated ingestion.
type stage struct {
	status    session.Status
	step      session.Step
	progress  int
	message   string
	processed int
	err       string
}

// schedule lists the states a session walks through for the given page
// count. Extraction advances page by page from 10 to 50, indexing from 75
// to 95.
func schedule(pages int) []stage {
	if pages == 0 {
		return []stage{
			{status: session.StatusProcessing, step: session.StepInitialization, progress: 5, message: "Initializing"},
			{status: session.StatusError, step: session.StepListing, message: "Processing failed", err: "No PDF files found in the session"},
		}
	}

	out := []stage{
		{status: session.StatusProcessing, step: session.StepInitialization, progress: 5, message: "Initializing"},
		{status: session.StatusProcessing, step: session.StepListing, progress: 10, message: "Listing documents"},
	}
	for p := 1; p <= pages; p++ {
		out = append(out, stage{
			status:    session.StatusProcessing,
			step:      session.StepExtraction,
			progress:  10 + 40*p/pages,
			message:   fmt.Sprintf("Extracting page %d/%d", p, pages),
			processed: p,
		})
	}
	out = append(out,
		stage{status: session.StatusProcessing, step: session.StepExtractionComplete, progress: 50, message: "Text extracted", processed: pages},
		stage{status: session.StatusProcessing, step: session.StepChunking, progress: 60, message: "Splitting text", processed: pages},
		stage{status: session.StatusProcessing, step: session.StepChunkingComplete, progress: 70, message: "Text split", processed: pages},
	)
	for _, p := range []int{75, 85, 95} {
		out = append(out, stage{status: session.StatusProcessing, step: session.StepIndexing, progress: p, message: "Indexing", processed: pages})
	}
	return append(out, stage{status: session.StatusReady, step: session.StepComplete, progress: 100, message: "Ready", processed: pages})
}

// simulate applies one stage per tick until the schedule ends or the
// server closes.
func (s *Server) simulate(id string, pages int) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	for _, st := range schedule(pages) {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		rec, ok := s.sessions[id]
		if !ok {
			s.mu.Unlock()
			return
		}
		rec.sess.Status = st.status
		rec.sess.CurrentStep = st.step
		rec.sess.Message = st.message
		rec.sess.TotalPages = pages
		rec.sess.ProcessedPages = st.processed
		rec.sess.Error = st.err
		if st.status == session.StatusError {
			rec.sess.Progress = 0
		} else {
			rec.sess.Progress = st.progress
		}
		s.mu.Unlock()
	}
	s.logger.Info("stub processing finished", "session_id", id, "pages", pages)
}

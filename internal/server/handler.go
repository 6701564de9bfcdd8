package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"resumeforge/internal/common"
	"resumeforge/internal/errors"
	"resumeforge/internal/types"
	"resumeforge/internal/utils"
	"resumeforge/internal/workflow"
)

// SessionResponse describes a session and the state of both its controllers
type SessionResponse struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	Generate  workflow.State `json:"generate"`
	Analyze   workflow.State `json:"analyze"`
}

func newSessionResponse(session *workflow.Session) SessionResponse {
	states := session.Snapshot()
	return SessionResponse{
		ID:        session.ID,
		CreatedAt: session.CreatedAt,
		Generate:  states[types.TaskGenerate],
		Analyze:   states[types.TaskAnalyze],
	}
}

// createSessionHandler registers a new session
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	session := s.sessions.Create()
	w.Header().Set("Location", "/api/sessions/"+session.ID)
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

// getSessionHandler reports both controllers of a session
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

// stateHandler reports the controller of one task kind
func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	_, ctrl, ok := s.lookupController(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ctrl.State())
}

// generateHandler starts a generate run and answers with the loading state
func (s *Server) generateHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "api.generate")
	defer span.End()

	session, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req GenerateRequest
	if err := parseJSONRequest(r, &req); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "validation"))
		writeErrorResponse(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if err := common.ValidateStruct(req); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "validation"))
		writeAppError(w, "Invalid generate request", err)
		return
	}

	if session.Generate.State().Phase == workflow.PhaseLoading {
		writeAppError(w, "Generate already running",
			errors.NewWorkflowError(errors.ErrCodeWorkflowBusy, "a generate run is already loading"))
		return
	}

	if !req.HasJobDescription() && strings.TrimSpace(req.JobURL) != "" {
		text, err := s.fetcher.Fetch(ctx, req.JobURL)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", "job_fetch"))
			writeAppError(w, "Failed to fetch job description", err)
			return
		}
		req.JobDescription = text
	}

	span.SetAttributes(
		attribute.String("session.id", session.ID),
		attribute.Bool("request.has_job_description", req.HasJobDescription()),
	)

	state, err := s.pipeline.Launch(ctx, session.Generate, types.NewGenerateRequest(req.GenerateFields))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeAppError(w, "Generate not started", err)
		return
	}
	s.sessions.SetExportName(session.ID, req.FullName)

	s.Logger.Info("Generate run started", "session_id", session.ID, "run", state.Run)
	writeJSON(w, http.StatusAccepted, state)
}

// analyzeHandler ingests the uploaded document and starts an analyze run
func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "api.analyze")
	defer span.End()

	session, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "validation"))
		writeErrorResponse(w, "Missing document", "multipart field 'file' with a PDF or DOCX resume is required", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			s.Logger.Warn("Failed to close uploaded file", "error", err)
		}
	}()

	if session.Analyze.State().Phase == workflow.PhaseLoading {
		writeAppError(w, "Analyze already running",
			errors.NewWorkflowError(errors.ErrCodeWorkflowBusy, "an analyze run is already loading"))
		return
	}

	doc, err := s.ingestor.Ingest(ctx, header.Filename, file)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "ingestion"))
		writeAppError(w, "Failed to ingest document", err)
		return
	}

	span.SetAttributes(
		attribute.String("session.id", session.ID),
		attribute.String("document.media_type", doc.MediaType),
		attribute.Int("document.size", doc.Size),
	)

	state, err := s.pipeline.Launch(ctx, session.Analyze, types.NewAnalyzeRequest(doc))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		writeAppError(w, "Analyze not started", err)
		return
	}

	s.Logger.Info("Analyze run started",
		"session_id", session.ID,
		"run", state.Run,
		"filename", doc.Name,
		"size", utils.FormatFileSize(int64(doc.Size)))
	writeJSON(w, http.StatusAccepted, state)
}

// exportHandler serves the resume text of the last successful generate run
func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	state := session.Generate.State()
	if state.Phase != workflow.PhaseSuccess || state.Result == nil || state.Result.Generate == nil {
		writeErrorResponse(w, "Nothing to export",
			fmt.Sprintf("generate is %s; export needs a successful run", state.Phase), http.StatusConflict)
		return
	}

	filename := utils.ExportFilename(s.sessions.ExportName(session.ID))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(state.Result.Generate.ResumeText)); err != nil {
		s.Logger.Warn("Failed to write export", "session_id", session.ID, "error", err)
	}
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*workflow.Session, bool) {
	id := r.PathValue("id")
	session, ok := s.sessions.Get(id)
	if !ok {
		writeErrorResponse(w, "Session not found", fmt.Sprintf("no session with id %q", id), http.StatusNotFound)
		return nil, false
	}
	return session, true
}

func (s *Server) lookupController(w http.ResponseWriter, r *http.Request) (*workflow.Session, *workflow.Controller, bool) {
	session, ok := s.lookupSession(w, r)
	if !ok {
		return nil, nil, false
	}
	kind, ok := types.ParseTaskKind(r.PathValue("kind"))
	if !ok {
		writeErrorResponse(w, "Unknown task kind",
			fmt.Sprintf("kind must be %s or %s", types.TaskGenerate, types.TaskAnalyze), http.StatusNotFound)
		return nil, nil, false
	}
	return session, session.Controller(kind), true
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	tclient "go.temporal.io/sdk/client"

	"github.com/cdnilsen/eliot-web/internal/address"
	"github.com/cdnilsen/eliot-web/internal/config"
	"github.com/cdnilsen/eliot-web/internal/logging"
	"github.com/cdnilsen/eliot-web/internal/models"
	"github.com/cdnilsen/eliot-web/internal/workflows"
)

const defaultHapaxLimit = 100

type HapaxLister interface {
	Hapaxes(ctx context.Context, limit int) ([]models.Hapax, error)
}

type Server struct {
	cfg      config.Config
	temporal tclient.Client
	hapaxes  HapaxLister
}

func NewServer(cfg config.Config, tc tclient.Client, hapaxes HapaxLister) *Server {
	return &Server{cfg: cfg, temporal: tc, hapaxes: hapaxes}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/books/", s.handleBooksScoped)
	mux.HandleFunc("/corpus/reconcile", s.handleCorpusReconcile)
	mux.HandleFunc("/corpus/progress", s.handleCorpusProgress)
	mux.HandleFunc("/hapaxes", s.handleHapaxes)
	return withCORS(logging.Middleware(mux))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleBooksScoped serves /books/{book}/reconcile and /books/{book}/status.
func (s *Server) handleBooksScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/books/")
	i := strings.LastIndex(rest, "/")
	if i <= 0 {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	book, err := address.LookupBook(rest[:i])
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	wfID := workflows.BookWorkflowID(book.Name)

	switch rest[i+1:] {
	case "reconcile":
		if r.Method != http.MethodPost {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
			ID:                                       wfID,
			TaskQueue:                                s.cfg.TemporalTaskQueue,
			WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
			WorkflowExecutionErrorWhenAlreadyStarted: true,
		}, workflows.ReconcileBookWorkflow, workflows.ReconcileBookInput{Book: book.Name})
		if err != nil {
			writeErr(w, startStatus(err), err)
			return
		}
		logging.LoggerFromContext(r.Context()).Info("book reconcile started", "book", book.Name, "workflow_id", we.GetID())
		writeJSON(w, http.StatusAccepted, map[string]any{"book": book.Name, "workflow_id": we.GetID(), "run_id": we.GetRunID()})
	case "status":
		if r.Method != http.MethodGet {
			writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		resp, err := s.temporal.QueryWorkflow(r.Context(), wfID, "", workflows.QueryGetBookStatus)
		if err != nil {
			writeErr(w, http.StatusNotFound, err)
			return
		}
		var status workflows.BookStatus
		if err := resp.Get(&status); err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	default:
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
	}
}

func (s *Server) handleCorpusReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	runID := uuid.NewString()
	we, err := s.temporal.ExecuteWorkflow(r.Context(), tclient.StartWorkflowOptions{
		ID:                                       workflows.CorpusWorkflowID,
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.ReconcileCorpusWorkflow, workflows.ReconcileCorpusInput{
		RunID:     runID,
		SkipSweep: r.URL.Query().Get("sweep") == "false",
	})
	if err != nil {
		writeErr(w, startStatus(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"workflow_id": we.GetID(), "run_id": runID})
}

func (s *Server) handleCorpusProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	resp, err := s.temporal.QueryWorkflow(r.Context(), workflows.CorpusWorkflowID, "", workflows.QueryGetProgress)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	var prog workflows.CorpusProgress
	if err := resp.Get(&prog); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

func (s *Server) handleHapaxes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	limit := defaultHapaxLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	out, err := s.hapaxes.Hapaxes(r.Context(), limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hapaxes": out, "count": len(out)})
}

func startStatus(err error) int {
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

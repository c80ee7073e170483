package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/vkruglov/docqa/internal/pipeline"
	"github.com/vkruglov/docqa/internal/status"
)

const maxUploadSize = 50 << 20 // 50MB

// Service is the orchestration surface the HTTP and MCP layers call.
type Service interface {
	SubmitQuery(ctx context.Context, query, taskInstruction string, externalContext []string) (pipeline.Answer, error)
	IngestFile(ctx context.Context, tempPath, filename, userContext string) pipeline.IngestResult
	Status(id string) status.Status
	ListIndexedSources(ctx context.Context) ([]string, error)
	GeneratePlan(ctx context.Context, request string) (string, error)
}

type AppDeps struct {
	Service Service
	Token   string // empty disables authentication
	TempDir string // where uploads are spooled before ingestion
	Log     *slog.Logger
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/query", handleQuery(deps))
		r.Post("/upload", handleUpload(deps))
		r.Get("/status/{id}", handleStatus(deps))
		r.Get("/documents", handleDocuments(deps))
		r.Post("/plan", handlePlan(deps))
	})

	return r
}

type queryRequest struct {
	Query           string   `json:"query"`
	TaskInstruction string   `json:"task_instruction"`
	ExternalContext []string `json:"external_context"`
}

type queryResponse struct {
	QueryID string `json:"query_id"`
	Answer  string `json:"answer"`
	Source  string `json:"source"`
}

func handleQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		answer, err := deps.Service.SubmitQuery(r.Context(), req.Query, req.TaskInstruction, req.ExternalContext)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		writeJSON(w, http.StatusOK, queryResponse{
			QueryID: answer.QueryID,
			Answer:  answer.Text,
			Source:  string(answer.Source),
		})
	}
}

type uploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Added   int    `json:"chunks_added"`
	Skipped int    `json:"chunks_skipped"`
}

func handleUpload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "missing file field: %v", err)
			return
		}
		defer file.Close()

		tmp, err := os.CreateTemp(deps.TempDir, "upload-*")
		if err != nil {
			deps.Log.Error("spooling upload", "error", err)
			httpError(w, http.StatusInternalServerError, "internal_error", "spooling upload: %v", err)
			return
		}
		if _, err := io.Copy(tmp, file); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading upload: %v", err)
			return
		}
		tmp.Close()

		res := deps.Service.IngestFile(r.Context(), tmp.Name(), header.Filename, r.FormValue("context"))
		code := http.StatusOK
		if !res.Success {
			code = http.StatusUnprocessableEntity
		}
		writeJSON(w, code, uploadResponse{
			Success: res.Success,
			Message: res.Message,
			Added:   res.Added,
			Skipped: res.Skipped,
		})
	}
}

func handleStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := deps.Service.Status(chi.URLParam(r, "id"))
		writeJSON(w, http.StatusOK, map[string]any{
			"phase":    string(st.Phase),
			"progress": st.Progress,
			"message":  st.Message,
		})
	}
}

func handleDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sources, err := deps.Service.ListIndexedSources(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "listing documents: %v", err)
			return
		}
		if sources == nil {
			sources = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": sources})
	}
}

type planRequest struct {
	Request string `json:"request"`
}

func handlePlan(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req planRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		plan, err := deps.Service.GeneratePlan(r.Context(), req.Request)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"plan": plan})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

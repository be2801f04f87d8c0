package tasks

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/s1natex/owned-tasks-api/internal/middleware"
)

const maxBodyBytes = 1 << 20

type taskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message,omitempty"`
	Details []fieldError `json:"details,omitempty"`
}

// RegisterRoutes mounts /tasks/ and /tasks/{id}/; both also answer without the trailing slash.
func RegisterRoutes(r chi.Router, svc *Service, log *slog.Logger) {
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", listTasks(svc, log))
		r.Post("/", createTask(svc, log))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getTask(svc, log))
			r.Put("/", updateTask(svc, log, fullSchema))
			r.Patch("/", updateTask(svc, log, patchSchema))
			r.Delete("/", deleteTask(svc, log))
		})
	})
}

func listTasks(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := requester(w, r)
		if !ok {
			return
		}

		q := ListQuery{Search: r.URL.Query().Get("search")}
		o, err := ParseOrdering(r.URL.Query().Get("ordering"))
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		q.Ordering = o

		list, err := svc.GetUserTasks(r.Context(), who.ID, q)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		rd := shape(ViewList, who)
		writeJSON(w, rd.status(), rd.many(list))
	}
}

func createTask(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := requester(w, r)
		if !ok {
			return
		}

		req, ok := decodeTaskRequest(w, r, fullSchema)
		if !ok {
			return
		}

		var description string
		if req.Description != nil {
			description = *req.Description
		}

		t, err := svc.CreateTask(r.Context(), who.ID, *req.Title, description)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		respond(w, shape(ViewCreate, who), t)
	}
}

func getTask(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := requester(w, r)
		if !ok {
			return
		}
		id, ok := taskID(w, r)
		if !ok {
			return
		}

		t, err := svc.GetTaskByID(r.Context(), id, who.ID)
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		respond(w, shape(ViewRetrieve, who), t)
	}
}

func updateTask(svc *Service, log *slog.Logger, schema *jsonschema.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := requester(w, r)
		if !ok {
			return
		}
		id, ok := taskID(w, r)
		if !ok {
			return
		}

		req, ok := decodeTaskRequest(w, r, schema)
		if !ok {
			return
		}

		t, err := svc.UpdateTask(r.Context(), id, who.ID, TaskPatch{
			Title:       req.Title,
			Description: req.Description,
		})
		if err != nil {
			writeError(w, r, log, err)
			return
		}
		respond(w, shape(ViewUpdate, who), t)
	}
}

func deleteTask(svc *Service, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, ok := requester(w, r)
		if !ok {
			return
		}
		id, ok := taskID(w, r)
		if !ok {
			return
		}

		if err := svc.DeleteTask(r.Context(), id, who.ID); err != nil {
			writeError(w, r, log, err)
			return
		}
		respond(w, shape(ViewDelete, who), Task{ID: id})
	}
}

func shape(v View, who middleware.Identity) renderer {
	return renderer{view: v, ownerName: who.Name, now: time.Now()}
}

// respond writes t in the renderer's view; views without a body send only the status.
func respond(w http.ResponseWriter, rd renderer, t Task) {
	body := rd.one(t)
	if body == nil {
		w.WriteHeader(rd.status())
		return
	}
	writeJSON(w, rd.status(), body)
}

func requester(w http.ResponseWriter, r *http.Request) (middleware.Identity, bool) {
	who, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		middleware.Unauthorized(w, "")
	}
	return who, ok
}

// taskID parses the {id} path segment. Anything that is not a positive
// integer cannot name a task and answers 404.
func taskID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusNotFound, errResponse{Error: "not_found", Message: ErrNotFound.Error()})
		return 0, false
	}
	return id, true
}

// decodeTaskRequest checks the body against schema before decoding it.
func decodeTaskRequest(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema) (taskRequest, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_json", Message: "request body too large or unreadable"})
		return taskRequest{}, false
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_json"})
		return taskRequest{}, false
	}
	if err := schema.Validate(doc); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{
			Error:   "validation_error",
			Details: schemaErrors(err),
		})
		return taskRequest{}, false
	}

	var req taskRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "invalid_json"})
		return taskRequest{}, false
	}
	return req, true
}

// writeError is the only place that turns service errors into status codes.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errResponse{
			Error:   "validation_error",
			Details: []fieldError{{Field: ve.Field, Message: ve.Message}},
		})
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errResponse{Error: "validation_error", Message: err.Error()})
	case errors.Is(err, ErrForbidden):
		writeJSON(w, http.StatusForbidden, errResponse{Error: "forbidden", Message: ErrForbidden.Error()})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, errResponse{Error: "not_found", Message: ErrNotFound.Error()})
	default:
		log.Error("task_request_failed",
			slog.String("error", err.Error()),
			slog.String("req_id", chimw.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		writeJSON(w, http.StatusInternalServerError, errResponse{Error: "unexpected_error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

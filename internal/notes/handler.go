package notes

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/2beens/notesbox/internal/auth"
	"github.com/2beens/notesbox/internal/telemetry/metrics"
	"github.com/2beens/notesbox/internal/telemetry/tracing"
	"github.com/2beens/notesbox/pkg"
)

type ListResponse struct {
	Notes []Note `json:"notes"`
	PaginationMeta
}

type newNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type updateNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Handler struct {
	service *Service
	metrics *metrics.Manager
}

func NewHandler(
	service *Service,
	metrics *metrics.Manager,
) *Handler {
	return &Handler{
		service: service,
		metrics: metrics,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/notes", handler.HandleAdd).Methods("POST", "OPTIONS").Name("new-note")
	router.HandleFunc("/notes/page/{page}/size/{size}", handler.HandleList).Methods("GET", "OPTIONS").Name("list-notes")
	router.HandleFunc("/notes/{id}", handler.HandleGet).Methods("GET", "OPTIONS").Name("get-note")
	router.HandleFunc("/notes/{id}", handler.HandleUpdate).Methods("PUT", "OPTIONS").Name("update-note")
	router.HandleFunc("/notes/{id}", handler.HandleDelete).Methods("DELETE", "OPTIONS").Name("remove-note")
}

func (handler *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.notes.add")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "POST, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	callerId, ok := handler.callerId(w, r)
	if !ok {
		return
	}

	var newNoteReq newNoteRequest
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&newNoteReq); err != nil {
			log.Errorf("new note, unmarshal json params: %s", err)
			http.Error(w, "add note failed", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("add new note failed, parse form error: %s", err)
			http.Error(w, "parse form error", http.StatusInternalServerError)
			return
		}
		newNoteReq = newNoteRequest{
			Title:   r.Form.Get("title"),
			Content: r.Form.Get("content"),
		}
	}

	addedNote, err := handler.service.CreateNote(ctx, callerId, newNoteReq.Title, newNoteReq.Content)
	if err != nil {
		writeNoteError(w, "add new note", err)
		return
	}

	handler.metrics.CounterNotes.Inc()

	noteJson, err := json.Marshal(addedNote)
	if err != nil {
		log.Errorf("failed to marshal new note: %s", err)
		http.Error(w, "error, failed to add new note", http.StatusInternalServerError)
		return
	}

	log.Tracef("new note added: [%s]: %d", addedNote.Title, addedNote.Id)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, noteJson, http.StatusCreated)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.notes.get")
	defer span.End()

	callerId, ok := handler.callerId(w, r)
	if !ok {
		return
	}

	noteId, ok := noteIdFromRequest(w, r)
	if !ok {
		return
	}

	note, err := handler.service.GetNote(ctx, callerId, noteId)
	if err != nil {
		writeNoteError(w, "get note", err)
		return
	}

	noteJson, err := json.Marshal(note)
	if err != nil {
		log.Errorf("failed to marshal note %d: %s", noteId, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, noteJson)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.notes.list")
	defer span.End()

	callerId, ok := handler.callerId(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	page, err := strconv.Atoi(vars["page"])
	if err != nil {
		log.Tracef("handle list notes, from <page> param: %s", err)
		http.Error(w, "error, parameter <page> invalid", http.StatusBadRequest)
		return
	}
	size, err := strconv.Atoi(vars["size"])
	if err != nil {
		log.Tracef("handle list notes, from <size> param: %s", err)
		http.Error(w, "error, parameter <size> invalid", http.StatusBadRequest)
		return
	}

	// by default, list only the caller's notes, without the soft-deleted ones
	filterByOwner := r.URL.Query().Get("filter_user") != "false"
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	notes, meta, err := handler.service.ListNotes(ctx, callerId, page, size, filterByOwner, includeDeleted)
	if err != nil {
		writeNoteError(w, "list notes", err)
		return
	}

	listJson, err := json.Marshal(ListResponse{
		Notes:          notes,
		PaginationMeta: meta,
	})
	if err != nil {
		log.Errorf("failed to marshal notes list: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, listJson)
}

func (handler *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.notes.update")
	defer span.End()

	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "PUT, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	callerId, ok := handler.callerId(w, r)
	if !ok {
		return
	}

	noteId, ok := noteIdFromRequest(w, r)
	if !ok {
		return
	}

	var updateNoteReq updateNoteRequest
	if r.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&updateNoteReq); err != nil {
			log.Errorf("update note, unmarshal json params: %s", err)
			http.Error(w, "update note failed", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			log.Errorf("update note failed, parse form error: %s", err)
			http.Error(w, "parse form error", http.StatusInternalServerError)
			return
		}
		updateNoteReq = updateNoteRequest{
			Title:   r.Form.Get("title"),
			Content: r.Form.Get("content"),
		}
	}

	updatedNote, err := handler.service.UpdateNote(ctx, callerId, noteId, updateNoteReq.Title, updateNoteReq.Content)
	if err != nil {
		writeNoteError(w, "update note", err)
		return
	}

	noteJson, err := json.Marshal(updatedNote)
	if err != nil {
		log.Errorf("failed to marshal updated note %d: %s", noteId, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Tracef("note updated: [%s]: %d", updatedNote.Title, updatedNote.Id)
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, noteJson)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.notes.delete")
	defer span.End()

	callerId, ok := handler.callerId(w, r)
	if !ok {
		return
	}

	noteId, ok := noteIdFromRequest(w, r)
	if !ok {
		return
	}

	deletedNote, err := handler.service.DeleteNote(ctx, callerId, noteId)
	if err != nil {
		writeNoteError(w, "delete note", err)
		return
	}

	handler.metrics.CounterNotesDeleted.Inc()

	noteJson, err := json.Marshal(deletedNote)
	if err != nil {
		log.Errorf("failed to marshal deleted note %d: %s", noteId, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Tracef("note deleted: %d", deletedNote.Id)
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, noteJson)
}

func (handler *Handler) callerId(w http.ResponseWriter, r *http.Request) (int, bool) {
	callerId, ok := auth.UserIdFromContext(r.Context())
	if !ok {
		// auth middleware lets no unauthenticated request through,
		// so this is a wiring bug rather than a client error
		log.Errorf("notes handler: no caller id in request context => %s", r.URL.Path)
		http.Error(w, "no can do", http.StatusUnauthorized)
		return 0, false
	}
	return callerId, true
}

func noteIdFromRequest(w http.ResponseWriter, r *http.Request) (int, bool) {
	idStr := mux.Vars(r)["id"]
	if idStr == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeNoteError(w http.ResponseWriter, op string, err error) {
	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		http.Error(w, validationErr.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNoteNotFound):
		http.Error(w, "note not found", http.StatusNotFound)
	case errors.Is(err, ErrNoteConflict):
		http.Error(w, "note conflict", http.StatusConflict)
	default:
		log.Errorf("%s: %s", op, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

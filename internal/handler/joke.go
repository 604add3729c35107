package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/jokebox/internal/auth"
	"github.com/sakif/jokebox/internal/model"
	"github.com/sakif/jokebox/internal/service"
)

// JokeHandler serves the /jokes endpoints. Every route sits behind
// RequireAuth; the handler only ever acts on the caller's own jokes.
type JokeHandler struct {
	jokes  *service.JokeService
	logger *slog.Logger
}

func NewJokeHandler(jokes *service.JokeService, logger *slog.Logger) *JokeHandler {
	return &JokeHandler{jokes: jokes, logger: logger}
}

type textRequest struct {
	Text string `json:"text" validate:"required"`
}

type pendingRequest struct {
	ID string `json:"id" validate:"required"`
}

type generateRequest struct {
	Prompt string `json:"prompt" validate:"max=200"`
}

type jokeResponse struct {
	Joke *model.Joke `json:"joke"`
}

type jokesResponse struct {
	Jokes []model.Joke `json:"jokes"`
}

// HandleList returns the caller's jokes, newest first.
//
// HTTP: GET /jokes
func (h *JokeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	jokes, err := h.jokes.List(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jokesResponse{Jokes: jokes})
}

// HandleCreate stores a joke the user typed.
//
// HTTP: POST /jokes {text}
func (h *JokeHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req textRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	joke, err := h.jokes.Create(r.Context(), user.ID, req.Text)
	h.respond(w, r, joke, err)
}

// HandleCreatePending reserves a client-chosen id for a joke still being
// written.
//
// HTTP: POST /jokes/pending {id}
func (h *JokeHandler) HandleCreatePending(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req pendingRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	joke, err := h.jokes.CreatePending(r.Context(), user.ID, req.ID)
	h.respond(w, r, joke, err)
}

// HandleGenerate asks the model for a joke and stores it.
//
// HTTP: POST /jokes/generate {prompt?}
func (h *JokeHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req generateRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	joke, err := h.jokes.Generate(r.Context(), user.ID, req.Prompt)
	h.respond(w, r, joke, err)
}

// HandleGenerateFor fills a pending (or failed) joke with generated text.
//
// HTTP: POST /jokes/generate/{id} {prompt?}
func (h *JokeHandler) HandleGenerateFor(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req generateRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	joke, err := h.jokes.GenerateFor(r.Context(), user.ID, chi.URLParam(r, "id"), req.Prompt)
	h.respond(w, r, joke, err)
}

// HandleComplete sets the text of a joke.
//
// HTTP: PUT /jokes/{id}/complete {text}
func (h *JokeHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req textRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	joke, err := h.jokes.Complete(r.Context(), user.ID, chi.URLParam(r, "id"), req.Text)
	h.respond(w, r, joke, err)
}

func (h *JokeHandler) respond(w http.ResponseWriter, r *http.Request, joke *model.Joke, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jokeResponse{Joke: joke})
}

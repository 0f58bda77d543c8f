package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// Handler exposes the quiz session use cases over REST and WebSocket.
type Handler struct {
	service  *app.QuizService
	logger   *zap.Logger
	origins  []string
	upgrader websocket.Upgrader
}

func NewHandler(service *app.QuizService, logger *zap.Logger, allowedOrigins []string) *Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	h := &Handler{
		service: service,
		logger:  logger,
		origins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin applies server.allowed_origins to websocket upgrades. Requests
// without an Origin header come from non-browser clients and are allowed.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	h.logger.Debug("ws origin rejected", zap.String("origin", origin))
	return false
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(h.logger), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(15 * time.Second))
		api.Get("/quizzes", h.listQuizzes)
		api.Post("/quizzes/{quizId}/sessions", h.createSession)
		api.Get("/sessions/{sessionId}", h.getSession)
		api.Post("/sessions/{sessionId}/start", h.startSession)
		api.Post("/sessions/{sessionId}/participants", h.addParticipant)
		api.Post("/sessions/{sessionId}/participants/{nickName}/answers/{answerId}", h.submitAnswer)
	})
	r.Get("/sessions/{sessionId}/events", h.ServeEvents)
	return r
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
}

type nickNameRequest struct {
	NickName string `json:"nickName"`
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *Handler) listQuizzes(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.ListQuizzes(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := h.service.CreateSession(r.Context(), chi.URLParam(r, "quizId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: sessionID})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Session(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StartSession(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) addParticipant(w http.ResponseWriter, r *http.Request) {
	var req nickNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid participant payload"})
		return
	}
	ok, err := h.service.AddParticipant(r.Context(), chi.URLParam(r, "sessionId"), req.NickName)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "participant rejected"})
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) submitAnswer(w http.ResponseWriter, r *http.Request) {
	ok, err := h.service.SubmitAnswer(r.Context(),
		chi.URLParam(r, "sessionId"),
		chi.URLParam(r, "nickName"),
		chi.URLParam(r, "answerId"),
	)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "answer rejected"})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrSessionClosed):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidQuiz):
		status = http.StatusUnprocessableEntity
	default:
		h.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package relay exposes the chat endpoint. It is the only component that
// holds the upstream credential: requests are validated, forwarded once to
// the chat-completion provider, and the reply text is returned. No state
// survives a request.
package relay

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sashabaranov/go-openai"

	"github.com/dfranca/folio-chat/internal/config"
	"github.com/dfranca/folio-chat/internal/llm"
	"github.com/dfranca/folio-chat/internal/logger"
)

// Handler serves the relay endpoints.
type Handler struct {
	llm            llm.Client
	model          string
	temperature    float32
	maxTokens      int
	allowedOrigins []string
}

// NewHandler builds a Handler from the loaded configuration.
func NewHandler(client llm.Client, cfg *config.Config) *Handler {
	return &Handler{
		llm:            client,
		model:          cfg.LLM.Model,
		temperature:    cfg.LLM.Temperature,
		maxTokens:      cfg.LLM.MaxTokens,
		allowedOrigins: cfg.CORS.AllowedOrigins,
	}
}

// Routes mounts the relay on a chi router. With no configured allow-list
// any origin is accepted; otherwise the CORS middleware echoes the request
// Origin only when it is a member and omits the header for everyone else.
func (h *Handler) Routes() chi.Router {
	origins := h.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(middleware.Timeout(60 * time.Second))

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusNotFound, errorResponse{Error: "Not found"})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/chat", h.chat)
	// Non-preflight OPTIONS never reaches the CORS middleware's preflight
	// branch; answer it explicitly.
	r.Options("/chat", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

type chatRequest struct {
	Messages []openai.ChatCompletionMessage `json:"messages"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.L.Error("read body error", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "Server error"})
		return
	}

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Messages == nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "messages array required"})
		return
	}

	resp, err := h.llm.CreateChatCompletion(r.Context(), openai.ChatCompletionRequest{
		Model:       h.model,
		Messages:    req.Messages,
		Temperature: h.temperature,
		MaxTokens:   h.maxTokens,
		Stream:      false,
	})
	if err != nil {
		h.respondUpstreamError(w, err)
		return
	}

	reply := ""
	if len(resp.Choices) > 0 {
		reply = resp.Choices[0].Message.Content
	}
	respondJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// respondUpstreamError maps a failed upstream call to the client response.
// Provider errors keep their status code; anything else is a generic 500
// so internals never leak.
func (h *Handler) respondUpstreamError(w http.ResponseWriter, err error) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= http.StatusBadRequest {
		logger.L.Warn("upstream error", "status", apiErr.HTTPStatusCode, "message", apiErr.Message)
		respondJSON(w, apiErr.HTTPStatusCode, errorResponse{Error: apiErr.Message})
		return
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode >= http.StatusBadRequest {
		logger.L.Warn("upstream request error", "status", reqErr.HTTPStatusCode, "error", reqErr.Err)
		msg := "Upstream error"
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		respondJSON(w, reqErr.HTTPStatusCode, errorResponse{Error: msg})
		return
	}

	logger.L.Error("upstream call failed", "error", err)
	respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "Server error"})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L.Error("write response error", "error", err)
	}
}

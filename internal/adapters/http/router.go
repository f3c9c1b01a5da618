// Package httpadapter exposes the question answering pipeline over a JSON
// HTTP API.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
	"github.com/nadavgross/faculty-rag/internal/core/ports"
	"github.com/nadavgross/faculty-rag/internal/core/usecase"
)

const defaultUserID = "local"

type TrafficConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrent  int
}

// Instrumentation is what the router needs from the metrics layer. Nil is
// allowed; the router then serves without request metrics or /metrics.
type Instrumentation interface {
	Middleware(service string, next http.Handler) http.Handler
	Handler() http.Handler
}

type Router struct {
	answerer     ports.QuestionAnswerer
	searcher     ports.SourceSearcher
	chats        ports.ChatStore
	queue        ports.RebuildQueue
	metrics      Instrumentation
	traffic      TrafficConfig
	historyTurns int
}

func NewRouter(
	answerer ports.QuestionAnswerer,
	searcher ports.SourceSearcher,
	chats ports.ChatStore,
	queue ports.RebuildQueue,
	metrics Instrumentation,
	traffic TrafficConfig,
	historyTurns int,
) *Router {
	if historyTurns <= 0 {
		historyTurns = 8
	}
	return &Router{
		answerer:     answerer,
		searcher:     searcher,
		chats:        chats,
		queue:        queue,
		metrics:      metrics,
		traffic:      traffic,
		historyTurns: historyTurns,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/ask", rt.ask)
	mux.HandleFunc("/v1/search", rt.search)
	mux.HandleFunc("/v1/chats", rt.chatsCollection)
	mux.HandleFunc("/v1/chats/", rt.chatsItem)
	mux.HandleFunc("/v1/index/rebuild", rt.rebuild)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = logRequests(handler)
	if rt.traffic.MaxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.traffic.MaxConcurrent, backpressureWait)
	}
	if rt.traffic.RateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.traffic.RateLimitRPS, rt.traffic.RateLimitBurst)
	}
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	return withRequestID(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Question string               `json:"question"`
		History  []domain.HistoryTurn `json:"history"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	answer, err := rt.answerer.Ask(r.Context(), req.Question, req.History)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'q' is required"})
		return
	}
	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'k' must be a non-negative integer"})
			return
		}
		k = parsed
	}

	candidates, err := rt.searcher.Search(r.Context(), query, k)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": candidates})
}

func (rt *Router) chatsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.createChat(w, r)
	case http.MethodGet:
		rt.listChats(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) createChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if r.Body != nil {
		// Body is optional for chat creation.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	chat := &domain.Chat{
		ID:     uuid.NewString(),
		UserID: userID(r),
		Title:  strings.TrimSpace(req.Title),
	}
	if err := rt.chats.CreateChat(r.Context(), chat); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (rt *Router) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := rt.chats.ListChats(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if chats == nil {
		chats = []domain.Chat{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (rt *Router) chatsItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/chats/")
	chatID, action, _ := strings.Cut(rest, "/")
	if chatID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "chat id is required"})
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		rt.getChat(w, r, chatID)
	case action == "ask" && r.Method == http.MethodPost:
		rt.askInChat(w, r, chatID)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func (rt *Router) getChat(w http.ResponseWriter, r *http.Request, chatID string) {
	chat, err := rt.chats.GetChat(r.Context(), userID(r), chatID)
	if err != nil {
		writeError(w, err)
		return
	}
	messages, err := rt.chats.ListMessages(r.Context(), chatID)
	if err != nil {
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat": chat, "messages": messages})
}

func (rt *Router) askInChat(w http.ResponseWriter, r *http.Request, chatID string) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	chat, err := rt.chats.GetChat(r.Context(), userID(r), chatID)
	if err != nil {
		writeError(w, err)
		return
	}

	history, err := rt.chats.ListRecentTurns(r.Context(), chat.ID, rt.historyTurns)
	if err != nil {
		writeError(w, err)
		return
	}

	answer, err := rt.answerer.Ask(r.Context(), req.Question, history)
	if err != nil {
		writeError(w, err)
		return
	}

	// A reset command or a fresh greeting starts the conversation over:
	// the stored window is wiped and the turn itself is not persisted, so
	// the next question sees no pre-reset history.
	switch answer.ShortCircuit {
	case usecase.ReasonReset, usecase.ReasonGreeting:
		if err := rt.chats.ClearMessages(r.Context(), chat.ID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, answer)
		return
	}

	if err := rt.persistExchange(r, chat, req.Question, answer); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// persistExchange stores the user turn and the assistant answer. Other
// short-circuits (no sources, too short) are persisted too, so the
// transcript matches what the user saw.
func (rt *Router) persistExchange(r *http.Request, chat *domain.Chat, question string, answer *domain.Answer) error {
	ctx := r.Context()
	if err := rt.chats.AppendMessage(ctx, domain.ChatMessage{
		ID:      uuid.NewString(),
		ChatID:  chat.ID,
		Role:    "user",
		Content: question,
	}); err != nil {
		return err
	}
	if err := rt.chats.AppendMessage(ctx, domain.ChatMessage{
		ID:      uuid.NewString(),
		ChatID:  chat.ID,
		Role:    "assistant",
		Content: answer.Text,
		Sources: answer.Sources,
	}); err != nil {
		return err
	}
	if chat.Title == "" {
		title := question
		if runes := []rune(title); len(runes) > 60 {
			title = string(runes[:60])
		}
		return rt.chats.UpdateChatTitle(ctx, chat.ID, title)
	}
	return nil
}

func (rt *Router) rebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.queue == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "rebuild queue not configured"})
		return
	}
	if err := rt.queue.PublishRebuildRequested(r.Context(), "api request"); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rebuild requested"})
}

func userID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-Id")); id != "" {
		return id
	}
	return defaultUserID
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

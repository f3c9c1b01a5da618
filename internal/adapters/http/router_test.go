package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
	"github.com/nadavgross/faculty-rag/internal/core/usecase"
)

type fakeAnswerer struct {
	answer  *domain.Answer
	err     error
	respond func(question string) *domain.Answer
	lastQ   string
	history []domain.HistoryTurn
}

func (f *fakeAnswerer) Ask(_ context.Context, question string, history []domain.HistoryTurn) (*domain.Answer, error) {
	f.lastQ = question
	f.history = append([]domain.HistoryTurn(nil), history...)
	if f.err != nil {
		return nil, f.err
	}
	if f.respond != nil {
		return f.respond(question), nil
	}
	return f.answer, nil
}

type fakeSearcher struct {
	results []domain.Candidate
	lastK   int
}

func (f *fakeSearcher) Search(_ context.Context, _ string, k int) ([]domain.Candidate, error) {
	f.lastK = k
	return f.results, nil
}

type fakeChatStore struct {
	chats    map[string]*domain.Chat
	messages []domain.ChatMessage
	titles   map[string]string
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		chats:  map[string]*domain.Chat{},
		titles: map[string]string{},
	}
}

func (f *fakeChatStore) CreateChat(_ context.Context, chat *domain.Chat) error {
	f.chats[chat.ID] = chat
	return nil
}

func (f *fakeChatStore) ListChats(_ context.Context, userID string) ([]domain.Chat, error) {
	var out []domain.Chat
	for _, c := range f.chats {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeChatStore) GetChat(_ context.Context, userID, chatID string) (*domain.Chat, error) {
	chat, ok := f.chats[chatID]
	if !ok || chat.UserID != userID {
		return nil, domain.ErrChatNotFound
	}
	return chat, nil
}

func (f *fakeChatStore) UpdateChatTitle(_ context.Context, chatID, title string) error {
	f.titles[chatID] = title
	return nil
}

func (f *fakeChatStore) AppendMessage(_ context.Context, message domain.ChatMessage) error {
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeChatStore) ListMessages(_ context.Context, chatID string) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	for _, m := range f.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeChatStore) ClearMessages(_ context.Context, chatID string) error {
	kept := f.messages[:0]
	for _, m := range f.messages {
		if m.ChatID != chatID {
			kept = append(kept, m)
		}
	}
	f.messages = kept
	return nil
}

func (f *fakeChatStore) ListRecentTurns(_ context.Context, chatID string, limit int) ([]domain.HistoryTurn, error) {
	var turns []domain.HistoryTurn
	for _, m := range f.messages {
		if m.ChatID == chatID {
			turns = append(turns, domain.HistoryTurn{Role: m.Role, Content: m.Content})
		}
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

type fakeQueue struct {
	published []string
	err       error
}

func (f *fakeQueue) PublishRebuildRequested(_ context.Context, reason string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, reason)
	return nil
}

func (f *fakeQueue) SubscribeRebuildRequested(context.Context, func(context.Context, string) error) error {
	return nil
}

func newTestRouter(answerer *fakeAnswerer, store *fakeChatStore, queue *fakeQueue, traffic TrafficConfig) http.Handler {
	if answerer == nil {
		answerer = &fakeAnswerer{answer: &domain.Answer{Text: "ok"}}
	}
	if store == nil {
		store = newFakeChatStore()
	}
	if queue == nil {
		queue = &fakeQueue{}
	}
	return NewRouter(answerer, &fakeSearcher{}, store, queue, nil, traffic, 8).Handler()
}

func TestAskEndpointReturnsAnswer(t *testing.T) {
	answerer := &fakeAnswerer{answer: &domain.Answer{
		Text:    "התשובה [1]",
		Sources: []domain.SourceRef{{N: 1, URL: "https://cs.example", Score: 0.9}},
	}}
	handler := newTestRouter(answerer, nil, nil, TrafficConfig{})

	body := strings.NewReader(`{"question": "מה תנאי הקבלה?"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/ask", body)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var answer domain.Answer
	if err := json.NewDecoder(res.Body).Decode(&answer); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if answer.Text != "התשובה [1]" {
		t.Fatalf("unexpected answer text %q", answer.Text)
	}
	if len(answer.Sources) != 1 || answer.Sources[0].N != 1 {
		t.Fatalf("unexpected sources %+v", answer.Sources)
	}
	if answerer.lastQ != "מה תנאי הקבלה?" {
		t.Fatalf("question not forwarded, got %q", answerer.lastQ)
	}
}

func TestAskEndpointRejectsInvalidJSON(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, TrafficConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader("{not json"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestAskEndpointMapsTemporaryErrorTo503(t *testing.T) {
	answerer := &fakeAnswerer{err: domain.WrapError(domain.ErrTemporary, "retrieve sources", context.DeadlineExceeded)}
	handler := newTestRouter(answerer, nil, nil, TrafficConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question": "מה שכר הלימוד?"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestSearchEndpointRequiresQuery(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, TrafficConfig{})

	req := httptest.NewRequest(http.MethodGet, "/v1/search", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without q, got %d", res.Code)
	}
}

func TestSearchEndpointForwardsK(t *testing.T) {
	searcher := &fakeSearcher{results: []domain.Candidate{
		{Score: 0.8, Chunk: domain.Chunk{ID: "a_000", URL: "https://cs.example/a", Text: "טקסט"}},
	}}
	handler := NewRouter(&fakeAnswerer{answer: &domain.Answer{}}, searcher, newFakeChatStore(), &fakeQueue{}, nil, TrafficConfig{}, 8).Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=%D7%AA%D7%95%D7%90%D7%A8&k=3", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if searcher.lastK != 3 {
		t.Fatalf("expected k=3 forwarded, got %d", searcher.lastK)
	}
	var resp struct {
		Results []domain.Candidate `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Chunk.ID != "a_000" {
		t.Fatalf("unexpected results %+v", resp.Results)
	}
}

func TestCreateAndGetChat(t *testing.T) {
	store := newFakeChatStore()
	handler := newTestRouter(nil, store, nil, TrafficConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/chats", strings.NewReader(`{"title": "שאלות קבלה"}`))
	req.Header.Set("X-User-Id", "student-7")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", res.Code, res.Body.String())
	}
	var chat domain.Chat
	if err := json.NewDecoder(res.Body).Decode(&chat); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if chat.ID == "" {
		t.Fatalf("expected generated chat id")
	}
	if chat.UserID != "student-7" {
		t.Fatalf("expected user from header, got %q", chat.UserID)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/v1/chats/"+chat.ID, nil)
	getReq.Header.Set("X-User-Id", "student-7")
	getRes := httptest.NewRecorder()
	handler.ServeHTTP(getRes, getReq)

	if getRes.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", getRes.Code, getRes.Body.String())
	}
}

func TestGetChatUnknownIDReturns404(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, TrafficConfig{})

	req := httptest.NewRequest(http.MethodGet, "/v1/chats/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestAskInChatPersistsBothTurns(t *testing.T) {
	store := newFakeChatStore()
	store.chats["c1"] = &domain.Chat{ID: "c1", UserID: defaultUserID}
	store.messages = []domain.ChatMessage{
		{ID: "m0", ChatID: "c1", Role: "user", Content: "שאלה קודמת"},
	}
	answerer := &fakeAnswerer{answer: &domain.Answer{
		Text:    "תשובה מהמקורות [1]",
		Sources: []domain.SourceRef{{N: 1, URL: "https://cs.example/fees"}},
	}}
	handler := newTestRouter(answerer, store, nil, TrafficConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/chats/c1/ask", strings.NewReader(`{"question": "כמה עולה שנה? 2026"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(answerer.history) != 1 || answerer.history[0].Content != "שאלה קודמת" {
		t.Fatalf("stored history not forwarded: %+v", answerer.history)
	}
	if len(store.messages) != 3 {
		t.Fatalf("expected user and assistant messages appended, got %d", len(store.messages))
	}
	if store.messages[1].Role != "user" || store.messages[2].Role != "assistant" {
		t.Fatalf("unexpected roles %q, %q", store.messages[1].Role, store.messages[2].Role)
	}
	if len(store.messages[2].Sources) != 1 {
		t.Fatalf("assistant sources not persisted: %+v", store.messages[2].Sources)
	}
	if store.titles["c1"] == "" {
		t.Fatalf("expected untitled chat to get a title from the first question")
	}
}

func askInChat(t *testing.T, handler http.Handler, chatID, question string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		t.Fatalf("encode question: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/chats/"+chatID+"/ask", strings.NewReader(string(body)))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("ask %q: expected 200, got %d: %s", question, res.Code, res.Body.String())
	}
	return res
}

func TestAskInChatResetClearsStoredHistory(t *testing.T) {
	store := newFakeChatStore()
	store.chats["c1"] = &domain.Chat{ID: "c1", UserID: defaultUserID, Title: "t"}
	answerer := &fakeAnswerer{respond: func(q string) *domain.Answer {
		if q == "reset" {
			return &domain.Answer{Text: "איפסתי את השיחה. איך אפשר לעזור?", ShortCircuit: usecase.ReasonReset}
		}
		return &domain.Answer{
			Text:    "המזכירות פתוחה בבוקר [1]",
			Sources: []domain.SourceRef{{N: 1, URL: "https://cs.example/hours"}},
		}
	}}
	handler := newTestRouter(answerer, store, nil, TrafficConfig{})

	askInChat(t, handler, "c1", "מה שעות הפתיחה של המזכירות?")
	if len(store.messages) != 2 {
		t.Fatalf("expected exchange persisted before reset, got %d messages", len(store.messages))
	}

	askInChat(t, handler, "c1", "reset")
	if len(store.messages) != 0 {
		t.Fatalf("reset must clear the stored window, %d messages remain", len(store.messages))
	}

	askInChat(t, handler, "c1", "ומה לגבי ימי שישי?")
	if len(answerer.history) != 0 {
		t.Fatalf("question after reset must see no pre-reset history, got %+v", answerer.history)
	}
}

func TestAskInChatGreetingClearsStoredHistory(t *testing.T) {
	store := newFakeChatStore()
	store.chats["c1"] = &domain.Chat{ID: "c1", UserID: defaultUserID, Title: "t"}
	store.messages = []domain.ChatMessage{
		{ID: "m0", ChatID: "c1", Role: "user", Content: "שאלה ישנה"},
		{ID: "m1", ChatID: "c1", Role: "assistant", Content: "תשובה ישנה"},
	}
	answerer := &fakeAnswerer{answer: &domain.Answer{
		Text:         "שלום! איך אפשר לעזור?",
		ShortCircuit: usecase.ReasonGreeting,
	}}
	handler := newTestRouter(answerer, store, nil, TrafficConfig{})

	askInChat(t, handler, "c1", "שלום")
	if len(store.messages) != 0 {
		t.Fatalf("greeting must clear the stored window, %d messages remain", len(store.messages))
	}
}

func TestAskInChatRequiresQuestion(t *testing.T) {
	store := newFakeChatStore()
	store.chats["c1"] = &domain.Chat{ID: "c1", UserID: defaultUserID}
	handler := newTestRouter(nil, store, nil, TrafficConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/chats/c1/ask", strings.NewReader(`{"question": "   "}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRebuildEndpointPublishes(t *testing.T) {
	queue := &fakeQueue{}
	handler := newTestRouter(nil, nil, queue, TrafficConfig{})

	req := httptest.NewRequest(http.MethodPost, "/v1/index/rebuild", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	if len(queue.published) != 1 {
		t.Fatalf("expected one publish, got %d", len(queue.published))
	}
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	handler := newTestRouter(nil, nil, nil, TrafficConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected %s header on response", requestIDHeader)
	}
}

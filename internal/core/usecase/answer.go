package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
	"github.com/nadavgross/faculty-rag/internal/core/langguard"
	"github.com/nadavgross/faculty-rag/internal/core/ports"
)

const (
	replyGreeting = "שלום! איך אפשר לעזור? שאל אותי שאלה על הפקולטה/החוגים."
	replyReset    = "איפסתי את השיחה. איך אפשר לעזור?"
	replyEmpty    = "לא התקבלה שאלה. אפשר לשאול אותי על הפקולטה והחוגים."
	replyTooShort = "השאלה קצרה מדי. נסה לנסח אותה בכמה מילים."
	replyNoNumber = "לא מצאתי במקורות שנסרקו סכום/מספר מדויק שמאפשר לענות על השאלה הזו. " +
		"כדי לקבל נתון רשמי, צריך להוסיף לאינדקס את עמוד/מסמך שכר הלימוד הרשמי של האוניברסיטה " +
		"או מקור רשמי שמכיל את הסכום המדויק."
	replyNoSources = "לא מצאתי מידע רלוונטי בעמודים שנסרקו. נסה לנסח את השאלה אחרת או לשאול על נושא אחר."

	// Short-circuit reasons recorded on the answer and in metrics.
	ReasonEmpty     = "empty"
	ReasonReset     = "reset"
	ReasonGreeting  = "greeting"
	ReasonTooShort  = "too_short"
	ReasonNoNumber  = "needs_exact_number"
	ReasonNoSources = "no_sources"
)

// Below this many runes a cleaned answer is considered destroyed rather than
// trimmed, and one regeneration is attempted.
const minViableAnswerRunes = 50

const regenerateInstruction = "Your previous response contained languages other than Hebrew/English. " +
	"Please provide the answer again using ONLY Hebrew or English characters. " +
	"Do not use Arabic, Russian, or any other languages."

// AskLimits bounds a single ask pipeline run. Zero fields take defaults.
type AskLimits struct {
	TopK         int
	MaxTokens    int
	HistoryTurns int
	GenTimeout   time.Duration
	Sampling     domain.SamplingOptions
}

// Observer receives pipeline events for metrics. Implementations must be
// non-blocking.
type Observer interface {
	AskServed(shortCircuit string, sourceCount int, duration time.Duration)
	SourceCleaned(url string)
	AnswerCleaned()
	AnswerRegenerated()
}

type nopObserver struct{}

func (nopObserver) AskServed(string, int, time.Duration) {}
func (nopObserver) SourceCleaned(string)                 {}
func (nopObserver) AnswerCleaned()                       {}
func (nopObserver) AnswerRegenerated()                   {}

// AskUseCase runs the full grounded question answering pipeline: routing,
// hybrid retrieval, context packing, guarded generation and post-validation.
// Stateless between calls; history is caller-owned.
type AskUseCase struct {
	retriever ports.SourceSearcher
	generator ports.Generator
	guard     *langguard.Guard
	policy    RoutingPolicy
	limits    AskLimits
	logger    *slog.Logger
	observer  Observer
}

func NewAskUseCase(
	retriever ports.SourceSearcher,
	generator ports.Generator,
	guard *langguard.Guard,
	policy RoutingPolicy,
	limits AskLimits,
	logger *slog.Logger,
	observer Observer,
) *AskUseCase {
	if limits.TopK <= 0 {
		limits.TopK = defaultTopK
	}
	if limits.MaxTokens <= 0 {
		limits.MaxTokens = 4000
	}
	if limits.HistoryTurns <= 0 {
		limits.HistoryTurns = 8
	}
	if limits.GenTimeout <= 0 {
		limits.GenTimeout = 180 * time.Second
	}
	if limits.Sampling.Temperature == 0 {
		limits.Sampling.Temperature = 0.1
	}
	if limits.Sampling.TopP == 0 {
		limits.Sampling.TopP = 0.9
	}
	if limits.Sampling.NumCtx == 0 {
		limits.Sampling.NumCtx = 8192
	}
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &AskUseCase{
		retriever: retriever,
		generator: generator,
		guard:     guard,
		policy:    policy,
		limits:    limits,
		logger:    logger,
		observer:  observer,
	}
}

// Ask implements ports.QuestionAnswerer.
func (uc *AskUseCase) Ask(ctx context.Context, question string, history []domain.HistoryTurn) (*domain.Answer, error) {
	start := time.Now()
	answer, err := uc.ask(ctx, question, history)
	if err != nil {
		return nil, err
	}
	uc.observer.AskServed(answer.ShortCircuit, len(answer.Sources), time.Since(start))
	uc.logger.Info("question_answered",
		slog.String("intent", string(DetectQueryIntent(question))),
		slog.Bool("hebrew_query", uc.guard.IsHebrewQuery(question)),
		slog.String("short_circuit", answer.ShortCircuit),
		slog.Int("sources", len(answer.Sources)),
		slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000.0))
	return answer, nil
}

func (uc *AskUseCase) ask(ctx context.Context, question string, history []domain.HistoryTurn) (*domain.Answer, error) {
	query := strings.TrimSpace(question)

	switch {
	case query == "":
		return shortCircuit(ReasonEmpty, replyEmpty), nil
	case uc.policy.IsReset(query):
		return shortCircuit(ReasonReset, replyReset), nil
	case uc.policy.IsGreeting(query):
		return shortCircuit(ReasonGreeting, replyGreeting), nil
	case uc.policy.IsTooShort(query):
		return shortCircuit(ReasonTooShort, replyTooShort), nil
	}

	picked, err := uc.retriever.Search(ctx, query, uc.limits.TopK)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "retrieve sources", err)
	}
	if len(picked) == 0 {
		return shortCircuit(ReasonNoSources, replyNoSources), nil
	}
	if uc.policy.NeedsExactNumber(query) && !sourcesHaveDigits(picked) {
		return shortCircuit(ReasonNoNumber, replyNoNumber), nil
	}

	fitted := fitSourcesToBudget(picked, uc.limits.MaxTokens)
	if len(fitted) == 0 {
		return shortCircuit(ReasonNoSources, replyNoSources), nil
	}
	uc.cleanSources(fitted)

	messages := uc.buildMessages(query, fitted, history)
	genCtx, cancel := context.WithTimeout(ctx, uc.limits.GenTimeout)
	defer cancel()

	raw, err := uc.generator.Chat(genCtx, messages, uc.limits.Sampling)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "generate answer", err)
	}

	final, err := uc.enforceLanguage(genCtx, raw, messages)
	if err != nil {
		return nil, err
	}

	return &domain.Answer{
		Text:    strings.TrimSpace(final),
		Sources: sourceRefs(fitted),
	}, nil
}

// cleanSources strips unwanted scripts from packed source text in place,
// mutating the fitted copies only, never the index.
func (uc *AskUseCase) cleanSources(fitted []domain.FittedSource) {
	for i := range fitted {
		detections := uc.guard.Detect(fitted[i].Chunk.Text)
		if len(detections) == 0 {
			continue
		}
		uc.logger.Warn("source contains unwanted scripts",
			slog.String("url", fitted[i].Chunk.URL),
			slog.Any("scripts", detections))
		fitted[i].Chunk.Text = uc.guard.Clean(fitted[i].Chunk.Text)
		uc.observer.SourceCleaned(fitted[i].Chunk.URL)
	}
}

// enforceLanguage validates the raw answer against the two-script policy,
// cleaning and regenerating at most once.
func (uc *AskUseCase) enforceLanguage(ctx context.Context, raw string, messages []domain.HistoryTurn) (string, error) {
	valid, reason := uc.guard.Validate(raw)
	if valid {
		return raw, nil
	}

	uc.logger.Warn("answer failed language validation", slog.String("reason", reason))
	cleaned := uc.guard.Clean(raw)
	uc.observer.AnswerCleaned()
	if len([]rune(strings.TrimSpace(cleaned))) >= minViableAnswerRunes {
		return cleaned, nil
	}

	// Cleaning gutted the answer; ask the model once more with an explicit
	// corrective turn.
	uc.observer.AnswerRegenerated()
	retryMessages := append(append([]domain.HistoryTurn{}, messages...), domain.HistoryTurn{
		Role:    "user",
		Content: regenerateInstruction,
	})
	again, err := uc.generator.Chat(ctx, retryMessages, uc.limits.Sampling)
	if err != nil {
		return "", domain.WrapError(domain.ErrTemporary, "regenerate answer", err)
	}
	if valid, _ := uc.guard.Validate(again); valid {
		return again, nil
	}
	uc.observer.AnswerCleaned()
	return uc.guard.Clean(again), nil
}

// buildMessages assembles the system instruction, the trailing history
// window and the user turn carrying the numbered source block.
func (uc *AskUseCase) buildMessages(query string, fitted []domain.FittedSource, history []domain.HistoryTurn) []domain.HistoryTurn {
	wantHebrew := uc.guard.IsHebrewQuery(query)
	answerLang := "English"
	if wantHebrew {
		answerLang = "Hebrew"
	}

	systemMsg := "You are a RAG assistant for the University of Haifa Faculty of Computer & Information Science.\n" +
		"STRICT RULES:\n" +
		"1) Use ONLY the provided SOURCES. Do not use outside knowledge.\n" +
		"2) If the answer is not explicitly supported by the sources, say you couldn't find it in the indexed pages.\n" +
		"3) Always add citations like [1], [2] that refer to SOURCE numbers.\n" +
		"4) Be concise and factual. Prefer bullet points when helpful.\n" +
		"5) Respond in " + answerLang + ".\n" +
		"6) If sources conflict, mention both views and cite each.\n" +
		"7) For numerical data (prices, dates, deadlines), quote EXACTLY from sources and cite.\n" +
		"8) CRITICAL: Use ONLY Hebrew or English in your response. Do NOT use Arabic, Russian, Chinese, Korean, or any other languages.\n" +
		"9) If you find yourself using other languages, stop and rewrite in Hebrew or English only.\n"

	userMsg := fmt.Sprintf("Question:\n%s\n\nSOURCES:\n%s\n\nWrite an answer with citations. Remember: ONLY Hebrew or English!",
		query, buildSourcesBlock(fitted))

	messages := make([]domain.HistoryTurn, 0, len(history)+2)
	messages = append(messages, domain.HistoryTurn{Role: "system", Content: systemMsg})
	if n := len(history); n > uc.limits.HistoryTurns {
		history = history[n-uc.limits.HistoryTurns:]
	}
	messages = append(messages, history...)
	messages = append(messages, domain.HistoryTurn{Role: "user", Content: userMsg})
	return messages
}

// buildSourcesBlock renders packed sources as a numbered block. The [SOURCE n]
// numbering is the citation contract for [n] references in the answer.
func buildSourcesBlock(fitted []domain.FittedSource) string {
	var b strings.Builder
	for i, f := range fitted {
		if i > 0 {
			b.WriteString("\n")
		}
		titlePart := ""
		if t := strings.TrimSpace(f.Chunk.Title); t != "" {
			titlePart = " | " + t
		}
		fmt.Fprintf(&b, "[SOURCE %d] %s%s\n%s\n", i+1, f.Chunk.URL, titlePart, strings.TrimSpace(f.Chunk.Text))
	}
	return strings.TrimSpace(b.String())
}

func sourceRefs(fitted []domain.FittedSource) []domain.SourceRef {
	refs := make([]domain.SourceRef, len(fitted))
	for i, f := range fitted {
		refs[i] = domain.SourceRef{
			N:     i + 1,
			Score: f.Score,
			URL:   f.Chunk.URL,
			Title: f.Chunk.Title,
		}
	}
	return refs
}

func shortCircuit(reason, text string) *domain.Answer {
	return &domain.Answer{Text: text, ShortCircuit: reason}
}

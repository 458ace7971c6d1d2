// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rag composes the full diary-grounded answer pipeline: guardrail
// check, session resolution, date parsing, retrieval, reranking, context
// assembly, semantic cache, streamed generation, and persistence.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/haru-ai/haru/services/embedding"
	"github.com/haru-ai/haru/services/guardrail"
	"github.com/haru-ai/haru/services/orchestrator/conversation"
	"github.com/haru-ai/haru/services/orchestrator/daterange"
	"github.com/haru-ai/haru/services/orchestrator/datatypes"
	"github.com/haru-ai/haru/services/orchestrator/generation"
	"github.com/haru-ai/haru/services/orchestrator/observability"
	"github.com/haru-ai/haru/services/orchestrator/rerank"
	"github.com/haru-ai/haru/services/orchestrator/semcache"
	"github.com/haru-ai/haru/services/orchestrator/vectorstore"
)

var tracer = otel.Tracer("haru.orchestrator.rag")

const (
	// RetrievalTopK candidates come out of the vector store; RerankTopK
	// survive reranking into the context.
	RetrievalTopK = 15
	RerankTopK    = 5

	// historyLimit and moodLimit bound the context inputs.
	historyLimit = conversation.DefaultHistoryLimit
	moodLimit    = 5

	// cachedTokenChunkRunes sizes the chunks a cached response is replayed
	// in, so a cache hit looks like a normal stream to the client.
	cachedTokenChunkRunes = 12
)

// FallbackMessage is streamed when generation fails after retries and no
// partial content was produced.
const FallbackMessage = "죄송해요, 지금은 답변을 만들지 못했어요. 잠시 후 다시 이야기해 주세요. 들려주신 이야기는 잘 기억해 둘게요."

// interruptionMarker tags persisted partial answers.
const interruptionMarker = "\n[응답이 중단되었습니다]"

// ErrStreamClosed is returned by an EventSink once the client has
// disconnected. The pipeline stops emitting but still completes
// persistence.
var ErrStreamClosed = errors.New("stream closed by client")

// EventSink receives the ordered stream events for one request. Implemented
// by the SSE writer.
type EventSink interface {
	Session(sessionID string) error
	Sources(refs []datatypes.DiaryRef) error
	Token(token string) error
	Done(diaryIDs []int, action *datatypes.SuggestedAction, cached bool) error
	Error(message, partial string) error
}

// MoodProvider supplies recent mood-state records from the external mood
// tracker. May return an empty slice.
type MoodProvider interface {
	RecentMoods(ctx context.Context, ownerID string, limit int) ([]datatypes.MoodState, error)
}

// NoMoods is the MoodProvider used when no mood tracker is wired.
type NoMoods struct{}

func (NoMoods) RecentMoods(ctx context.Context, ownerID string, limit int) ([]datatypes.MoodState, error) {
	return nil, nil
}

// Orchestrator runs one chat request end to end.
//
// # Thread Safety
//
// Safe for concurrent use; all per-request state is local to Stream.
type Orchestrator struct {
	embedder embedding.Client
	store    vectorstore.Store
	reranker rerank.Reranker
	cache    semcache.Cache
	sessions conversation.Store
	engine   *generation.Engine
	guard    guardrail.Service
	moods    MoodProvider
	now      func() time.Time
}

// Config wires the orchestrator's collaborators. Guard and Moods are
// optional; the rest are required.
type Config struct {
	Embedder embedding.Client
	Store    vectorstore.Store
	Reranker rerank.Reranker
	Cache    semcache.Cache
	Sessions conversation.Store
	Engine   *generation.Engine
	Guard    guardrail.Service
	Moods    MoodProvider
}

// New builds the orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Embedder == nil || cfg.Store == nil || cfg.Reranker == nil ||
		cfg.Cache == nil || cfg.Sessions == nil || cfg.Engine == nil {
		return nil, fmt.Errorf("rag orchestrator: missing required collaborator")
	}
	moods := cfg.Moods
	if moods == nil {
		moods = NoMoods{}
	}
	return &Orchestrator{
		embedder: cfg.Embedder,
		store:    cfg.Store,
		reranker: cfg.Reranker,
		cache:    cfg.Cache,
		sessions: cfg.Sessions,
		engine:   cfg.Engine,
		guard:    cfg.Guard,
		moods:    moods,
		now:      time.Now,
	}, nil
}

// Stream answers one chat request, emitting the event sequence to sink.
//
// # Description
//
// Event order: exactly one session event first, an optional sources event,
// zero or more token events, then exactly one done or error event. A sink
// error (client gone) suppresses further emission while persistence still
// completes.
func (o *Orchestrator) Stream(ctx context.Context, ownerID string, req datatypes.ChatStreamRequest, sink EventSink) {
	ctx, span := tracer.Start(ctx, "ChatStream")
	defer span.End()

	start := o.now()

	// 1. Session resolution, announced before anything else.
	session, err := o.resolveSession(ctx, ownerID, req.SessionID)
	if err != nil {
		if datatypes.IsNotFound(err) {
			o.emitError(sink, "세션을 찾을 수 없습니다.", "")
		} else {
			slog.Error("Session resolution failed", "ownerID", ownerID, "error", err)
			o.emitError(sink, "세션을 준비하지 못했습니다.", "")
		}
		return
	}
	emitOK := sink.Session(session.SessionID) == nil

	// 2. Guardrail pre-check. The original message is persisted regardless
	// of the outcome; a rejection streams through the normal token path so
	// the client experience stays uniform.
	query := req.Message
	if o.guard != nil {
		decision := o.guard.Check(req.Message)
		if !decision.Allowed {
			o.persistTurns(ctx, ownerID, session.SessionID, req.Message, decision.Reason, nil)
			if emitOK {
				if err := sink.Token(decision.Reason); err == nil {
					_ = sink.Done(nil, nil, false)
				}
			}
			observability.ObserveChatRequest("blocked", o.now().Sub(start))
			return
		}
		if decision.SanitizedInput != "" {
			query = decision.SanitizedInput
		}
	}

	// 3. Temporal filter from the query text.
	dateRange := daterange.Parse(query, o.now())

	// 4. Query embedding. A failure here removes retrieval and caching but
	// not the conversation itself; the model answers ungrounded.
	vector, err := o.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("Query embedding failed, answering without retrieval",
			"ownerID", ownerID, "error", err)
		vector = nil
	}

	// 5. Retrieval and mood fetch in parallel.
	var diaries []datatypes.DiarySearchResult
	var moodStates []datatypes.MoodState
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if vector == nil {
			return nil
		}
		candidates, err := o.store.SearchSimilar(gctx, vectorstore.SearchParams{
			OwnerID: ownerID,
			Vector:  vector,
			TopK:    RetrievalTopK,
			Range:   dateRange,
		})
		if err != nil {
			return err
		}
		diaries = o.reranker.Rerank(gctx, query, candidates, RerankTopK)
		return nil
	})
	g.Go(func() error {
		states, err := o.moods.RecentMoods(gctx, ownerID, moodLimit)
		if err != nil {
			// Mood seasoning is optional.
			slog.Warn("Mood-state fetch failed", "ownerID", ownerID, "error", err)
			return nil
		}
		moodStates = states
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.Warn("Retrieval failed, answering without diary grounding",
			"ownerID", ownerID, "error", err)
		diaries = nil
	}

	// 6. Recent history for context. Best-effort.
	history, err := o.sessions.GetRecentMessages(ctx, ownerID, session.SessionID, historyLimit)
	if err != nil {
		slog.Warn("History fetch failed, continuing without it",
			"sessionID", session.SessionID, "error", err)
		history = nil
	}

	// 7. Semantic cache: a hit replays the stored response through the
	// normal token path.
	if vector != nil {
		if hit := o.cache.Lookup(ctx, ownerID, query, vector); hit != nil {
			observability.RecordCacheHit()
			o.persistTurns(ctx, ownerID, session.SessionID, req.Message, hit.Response, hit.DiaryIDs)
			// Cached turns still grow the session, so they trigger the same
			// compaction check as generated ones.
			o.compactIfNeeded(ownerID, session.SessionID)
			if emitOK {
				o.replayCached(sink, hit)
			}
			observability.ObserveChatRequest("cache_hit", o.now().Sub(start))
			return
		}
		observability.RecordCacheMiss()
	}

	// 8. Sources precede the first token.
	if emitOK && len(diaries) > 0 {
		refs := make([]datatypes.DiaryRef, len(diaries))
		for i, d := range diaries {
			refs[i] = datatypes.DiaryRef{
				DiaryID: d.DiaryID,
				Title:   d.Title,
				Date:    d.Date.Format("2006-01-02"),
				Score:   d.Score,
			}
		}
		if err := sink.Sources(refs); err != nil {
			emitOK = false
		}
	}

	// 9. Streamed generation.
	genReq := generation.Request{
		OwnerID:      ownerID,
		UserMessage:  query,
		Context:      BuildContext(diaries, history, moodStates),
		Summary:      session.Summary,
		History:      history,
		ToolsEnabled: req.ToolsEnabled,
	}

	firstToken := time.Time{}
	clientGone := false
	answer, genErr := o.engine.Generate(ctx, genReq, func(token string) error {
		if !emitOK || clientGone {
			return nil
		}
		if firstToken.IsZero() {
			firstToken = o.now()
			observability.ObserveTimeToFirstToken(firstToken.Sub(start))
		}
		observability.RecordTokens(1)
		if err := sink.Token(token); err != nil {
			// Client gone: swallow the error so generation completes and
			// the answer can still be persisted.
			clientGone = true
		}
		return nil
	})

	diaryIDs := make([]int, len(diaries))
	for i, d := range diaries {
		diaryIDs[i] = d.DiaryID
	}

	if genErr != nil {
		o.finishFailed(ctx, sink, ownerID, session.SessionID, req.Message, answer, genErr, emitOK && !clientGone)
		observability.ObserveChatRequest("error", o.now().Sub(start))
		return
	}

	// 10. CTA decision and terminal event.
	action := decideAction(answer, diaries)
	if emitOK && !clientGone {
		_ = sink.Done(diaryIDs, action, false)
	}

	// 11. Persistence, then the detached side effects.
	o.persistTurns(ctx, ownerID, session.SessionID, req.Message, answer, diaryIDs)
	o.compactIfNeeded(ownerID, session.SessionID)
	if vector != nil {
		go func(vec []float32, ids []int) {
			storeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			o.cache.Store(storeCtx, ownerID, query, answer, ids, vec)
		}(vector, diaryIDs)
	}

	observability.ObserveChatRequest("ok", o.now().Sub(start))
}

// resolveSession returns the explicit session or the session of the day.
func (o *Orchestrator) resolveSession(ctx context.Context, ownerID, sessionID string) (*datatypes.ChatSession, error) {
	if sessionID != "" {
		return o.sessions.GetSession(ctx, ownerID, sessionID)
	}
	return o.sessions.GetOrCreateSession(ctx, ownerID)
}

// finishFailed handles a generation error: fallback message when nothing
// was streamed, error event with the partial otherwise. Partial content is
// persisted with an interruption marker.
func (o *Orchestrator) finishFailed(ctx context.Context, sink EventSink, ownerID, sessionID, userMessage, partial string, genErr error, emitOK bool) {
	slog.Error("Generation failed", "sessionID", sessionID, "error", genErr)

	if partial == "" {
		o.persistTurns(ctx, ownerID, sessionID, userMessage, FallbackMessage, nil)
		if emitOK {
			if err := sink.Token(FallbackMessage); err == nil {
				_ = sink.Done(nil, nil, false)
			}
		}
		return
	}

	o.persistTurns(ctx, ownerID, sessionID, userMessage, partial+interruptionMarker, nil)
	if emitOK {
		_ = sink.Error("응답 생성이 중단되었습니다.", partial)
	}
}

// replayCached streams a cached response in small chunks and terminates the
// stream.
func (o *Orchestrator) replayCached(sink EventSink, hit *semcache.Hit) {
	runes := []rune(hit.Response)
	for i := 0; i < len(runes); i += cachedTokenChunkRunes {
		end := i + cachedTokenChunkRunes
		if end > len(runes) {
			end = len(runes)
		}
		if err := sink.Token(string(runes[i:end])); err != nil {
			return
		}
	}
	_ = sink.Done(hit.DiaryIDs, nil, true)
}

// persistTurns saves the user and assistant messages. Persistence failures
// are logged, not surfaced: the answer has already been delivered.
func (o *Orchestrator) persistTurns(ctx context.Context, ownerID, sessionID, userMessage, answer string, diaryIDs []int) {
	if err := o.sessions.SaveMessage(ctx, ownerID, datatypes.ChatMessage{
		SessionID: sessionID,
		Role:      datatypes.RoleUser,
		Content:   userMessage,
	}); err != nil {
		slog.Error("Failed to persist user message", "sessionID", sessionID, "error", err)
	}
	if answer == "" {
		return
	}
	if err := o.sessions.SaveMessage(ctx, ownerID, datatypes.ChatMessage{
		SessionID:       sessionID,
		Role:            datatypes.RoleAssistant,
		Content:         answer,
		RelatedDiaryIDs: diaryIDs,
	}); err != nil {
		slog.Error("Failed to persist assistant message", "sessionID", sessionID, "error", err)
	}
}

// compactIfNeeded runs summarization in the background once the session
// crosses the threshold.
func (o *Orchestrator) compactIfNeeded(ownerID, sessionID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		needed, err := o.sessions.NeedsSummarization(ctx, ownerID, sessionID)
		if err != nil || !needed {
			return
		}
		if err := o.sessions.SummarizeOldMessages(ctx, ownerID, sessionID); err != nil {
			slog.Warn("Session compaction failed", "sessionID", sessionID, "error", err)
		}
	}()
}

// emitError sends a terminal error event, tolerating a closed sink.
func (o *Orchestrator) emitError(sink EventSink, message, partial string) {
	_ = sink.Error(message, partial)
}

// =============================================================================
// CTA Decision
// =============================================================================

// ctaRule maps answer vocabulary to a suggested follow-up action.
type ctaRule struct {
	keywords []string
	action   datatypes.SuggestedAction
}

var ctaRules = []ctaRule{
	{
		keywords: []string{"스트레스", "힘들", "우울", "불안", "지친"},
		action: datatypes.SuggestedAction{
			Type:  "view_triggers",
			Label: "어떤 상황이 감정을 흔들었는지 살펴볼까요?",
		},
	},
	{
		keywords: []string{"기분", "감정", "분석"},
		action: datatypes.SuggestedAction{
			Type:  "mood_analysis",
			Label: "최근 기분 분포를 확인해 보세요",
		},
	},
}

// writeDiaryAction is the default nudge when nothing was retrieved: no
// grounding usually means not enough recent entries.
var writeDiaryAction = datatypes.SuggestedAction{
	Type:  "write_diary",
	Label: "오늘의 이야기를 일기로 남겨볼까요?",
}

// decideAction picks an optional follow-up from answer vocabulary and
// retrieval signal. Pure keyword heuristic; nil means no action.
func decideAction(answer string, diaries []datatypes.DiarySearchResult) *datatypes.SuggestedAction {
	for _, rule := range ctaRules {
		for _, kw := range rule.keywords {
			if strings.Contains(answer, kw) {
				action := rule.action
				return &action
			}
		}
	}
	if len(diaries) == 0 {
		action := writeDiaryAction
		return &action
	}
	return nil
}

// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package conversation owns chat session and message persistence: the
// session-of-the-day convention, recency-windowed message retrieval, and
// summarization compaction once a session's history grows past the
// threshold.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("haru.orchestrator.conversation")

const (
	// SummarizationThreshold: a session strictly above this many messages
	// gets compacted.
	SummarizationThreshold = 10

	// KeepRecentMessages survive compaction verbatim; everything older is
	// folded into the summary and deleted.
	KeepRecentMessages = 5

	// DefaultHistoryLimit is how many recent turns the chat path loads.
	DefaultHistoryLimit = 10
)

// Store is the session persistence boundary.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. GetOrCreateSession is
// not linearizable: two concurrent first messages of the day can create two
// sessions. Accepted as a soft consistency property.
type Store interface {
	GetOrCreateSession(ctx context.Context, ownerID string) (*datatypes.ChatSession, error)
	GetSession(ctx context.Context, ownerID, sessionID string) (*datatypes.ChatSession, error)
	ListSessions(ctx context.Context, ownerID string, limit int) ([]datatypes.ChatSession, error)
	SaveMessage(ctx context.Context, ownerID string, msg datatypes.ChatMessage) error
	GetRecentMessages(ctx context.Context, ownerID, sessionID string, limit int) ([]datatypes.ChatMessage, error)
	NeedsSummarization(ctx context.Context, ownerID, sessionID string) (bool, error)
	SummarizeOldMessages(ctx context.Context, ownerID, sessionID string) error
	DeleteSession(ctx context.Context, ownerID, sessionID string) error
	DeactivateSession(ctx context.Context, ownerID, sessionID string) error
}

// Summarizer produces the compaction synopsis. Implemented by the LLM
// client's Generate method behind a thin adapter.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// WeaviateStore implements Store on the ChatSession and ChatMessage classes.
type WeaviateStore struct {
	client     *weaviate.Client
	summarizer Summarizer
	now        func() time.Time
}

var _ Store = (*WeaviateStore)(nil)

// NewWeaviateStore creates the session store. summarizer may be nil, in
// which case SummarizeOldMessages reports an error instead of compacting.
func NewWeaviateStore(client *weaviate.Client, summarizer Summarizer) *WeaviateStore {
	return &WeaviateStore{client: client, summarizer: summarizer, now: time.Now}
}

// =============================================================================
// Sessions
// =============================================================================

// GetOrCreateSession returns the owner's session of the day.
//
// # Description
//
// Looks for the most recent active session created since local midnight;
// when none exists a new session is created. Two racing calls can both
// create; the next lookup converges on the newest one.
func (s *WeaviateStore) GetOrCreateSession(ctx context.Context, ownerID string) (*datatypes.ChatSession, error) {
	ctx, span := tracer.Start(ctx, "GetOrCreateSession")
	defer span.End()

	if ownerID == "" {
		return nil, datatypes.NewValidationError("ownerID", "must not be empty")
	}

	midnight := datatypes.StartOfDay(s.now()).UnixMilli()
	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			ownerFilter(ownerID),
			filters.Where().
				WithPath([]string{"is_active"}).
				WithOperator(filters.Equal).
				WithValueBoolean(true),
			filters.Where().
				WithPath([]string{"created_at"}).
				WithOperator(filters.GreaterThanEqual).
				WithValueNumber(float64(midnight)),
		})

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ClassChatSession).
		WithFields(sessionFields()...).
		WithWhere(where).
		WithSort(graphql.Sort{Path: []string{"created_at"}, Order: graphql.Desc}).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to look up today's session: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[sessionQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session lookup: %w", err)
	}
	if len(parsed.Get.ChatSession) > 0 {
		session := toSession(parsed.Get.ChatSession[0])
		slog.Debug("Reusing today's session",
			"ownerID", ownerID, "sessionID", session.SessionID)
		return &session, nil
	}

	return s.createSession(ctx, ownerID)
}

func (s *WeaviateStore) createSession(ctx context.Context, ownerID string) (*datatypes.ChatSession, error) {
	now := s.now()
	session := datatypes.ChatSession{
		SessionID: uuid.NewString(),
		UserID:    ownerID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.client.Data().Creator().
		WithClassName(datatypes.ClassChatSession).
		WithProperties(map[string]interface{}{
			"session_id": session.SessionID,
			"user_id":    session.UserID,
			"title":      "",
			"summary":    "",
			"is_active":  true,
			"created_at": now.UnixMilli(),
			"updated_at": now.UnixMilli(),
		}).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	slog.Info("Created new chat session",
		"ownerID", ownerID, "sessionID", session.SessionID)
	return &session, nil
}

// GetSession loads one session, owner-scoped.
//
// # Errors
//
//   - NotFoundError when the session does not exist or belongs to another
//     owner; the two cases are indistinguishable on purpose.
func (s *WeaviateStore) GetSession(ctx context.Context, ownerID, sessionID string) (*datatypes.ChatSession, error) {
	ctx, span := tracer.Start(ctx, "GetSession")
	defer span.End()

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ClassChatSession).
		WithFields(sessionFields()...).
		WithWhere(sessionOwnerFilter(ownerID, sessionID)).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[sessionQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	if len(parsed.Get.ChatSession) == 0 {
		return nil, datatypes.NewNotFoundError("session", sessionID)
	}

	session := toSession(parsed.Get.ChatSession[0])
	return &session, nil
}

// ListSessions returns the owner's sessions, most recently updated first.
func (s *WeaviateStore) ListSessions(ctx context.Context, ownerID string, limit int) ([]datatypes.ChatSession, error) {
	ctx, span := tracer.Start(ctx, "ListSessions")
	defer span.End()

	if limit < 1 {
		return nil, datatypes.NewValidationError("limit", "must be at least 1")
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ClassChatSession).
		WithFields(sessionFields()...).
		WithWhere(ownerFilter(ownerID)).
		WithSort(graphql.Sort{Path: []string{"updated_at"}, Order: graphql.Desc}).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[sessionQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse session list: %w", err)
	}

	sessions := make([]datatypes.ChatSession, 0, len(parsed.Get.ChatSession))
	for _, obj := range parsed.Get.ChatSession {
		sessions = append(sessions, toSession(obj))
	}
	return sessions, nil
}

// DeleteSession removes the session and every message in it.
func (s *WeaviateStore) DeleteSession(ctx context.Context, ownerID, sessionID string) error {
	ctx, span := tracer.Start(ctx, "DeleteSession")
	defer span.End()

	// Ownership check first; the message delete below filters by session
	// id only.
	if _, err := s.GetSession(ctx, ownerID, sessionID); err != nil {
		return err
	}

	messageFilter := filters.Where().
		WithPath([]string{"session_id"}).
		WithOperator(filters.Equal).
		WithValueString(sessionID)

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(datatypes.ClassChatMessage).
		WithOutput("minimal").
		WithWhere(messageFilter).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete session messages: %w", err)
	}

	_, err = s.client.Batch().ObjectsBatchDeleter().
		WithClassName(datatypes.ClassChatSession).
		WithOutput("minimal").
		WithWhere(sessionOwnerFilter(ownerID, sessionID)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("Deleted session and its messages",
		"ownerID", ownerID, "sessionID", sessionID)
	return nil
}

// DeactivateSession soft-deactivates without deleting history.
func (s *WeaviateStore) DeactivateSession(ctx context.Context, ownerID, sessionID string) error {
	ctx, span := tracer.Start(ctx, "DeactivateSession")
	defer span.End()

	session, err := s.GetSession(ctx, ownerID, sessionID)
	if err != nil {
		return err
	}
	session.IsActive = false
	return s.replaceSession(ctx, *session)
}

// =============================================================================
// Messages
// =============================================================================

// SaveMessage appends one turn and bumps the session's updated_at.
func (s *WeaviateStore) SaveMessage(ctx context.Context, ownerID string, msg datatypes.ChatMessage) error {
	ctx, span := tracer.Start(ctx, "SaveMessage")
	defer span.End()

	if !msg.Role.Valid() {
		return datatypes.NewValidationError("role", "unknown message role")
	}
	if msg.SessionID == "" {
		return datatypes.NewValidationError("sessionID", "must not be empty")
	}

	session, err := s.GetSession(ctx, ownerID, msg.SessionID)
	if err != nil {
		return err
	}

	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	diaryIDs := msg.RelatedDiaryIDs
	if diaryIDs == nil {
		diaryIDs = []int{}
	}

	_, err = s.client.Data().Creator().
		WithClassName(datatypes.ClassChatMessage).
		WithProperties(map[string]interface{}{
			"message_id":        msg.MessageID,
			"session_id":        msg.SessionID,
			"role":              string(msg.Role),
			"content":           msg.Content,
			"related_diary_ids": diaryIDs,
			"created_at":        msg.CreatedAt.UnixMilli(),
		}).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	session.UpdatedAt = s.now()
	if err := s.replaceSession(ctx, *session); err != nil {
		// The message made it; a stale updated_at only skews session
		// ordering.
		slog.Warn("Failed to bump session updated_at",
			"sessionID", msg.SessionID, "error", err)
	}
	return nil
}

// GetRecentMessages returns the limit most recent turns in chronological
// order.
//
// # Description
//
// Fetches newest-first from storage, then reverses, so callers always see
// oldest-first regardless of storage order.
//
// # Errors
//
//   - ValidationError when limit < 1.
//   - NotFoundError when the session is absent or foreign.
func (s *WeaviateStore) GetRecentMessages(ctx context.Context, ownerID, sessionID string, limit int) ([]datatypes.ChatMessage, error) {
	ctx, span := tracer.Start(ctx, "GetRecentMessages")
	defer span.End()

	if limit < 1 {
		return nil, datatypes.NewValidationError("limit", "must be at least 1")
	}
	if _, err := s.GetSession(ctx, ownerID, sessionID); err != nil {
		return nil, err
	}

	messages, err := s.fetchMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

// fetchMessages loads up to limit messages newest-first. The limit must be
// positive; Weaviate treats a query without one as a request for its default
// page size, not for everything.
func (s *WeaviateStore) fetchMessages(ctx context.Context, sessionID string, limit int) ([]datatypes.ChatMessage, error) {
	if limit < 1 {
		return nil, datatypes.NewValidationError("limit", "must be at least 1")
	}
	query := s.client.GraphQL().Get().
		WithClassName(datatypes.ClassChatMessage).
		WithFields(
			graphql.Field{Name: "message_id"},
			graphql.Field{Name: "session_id"},
			graphql.Field{Name: "role"},
			graphql.Field{Name: "content"},
			graphql.Field{Name: "related_diary_ids"},
			graphql.Field{Name: "created_at"},
		).
		WithWhere(filters.Where().
			WithPath([]string{"session_id"}).
			WithOperator(filters.Equal).
			WithValueString(sessionID)).
		WithSort(graphql.Sort{Path: []string{"created_at"}, Order: graphql.Desc}).
		WithLimit(limit)

	result, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[messageQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}

	messages := make([]datatypes.ChatMessage, 0, len(parsed.Get.ChatMessage))
	for _, obj := range parsed.Get.ChatMessage {
		messages = append(messages, datatypes.ChatMessage{
			MessageID:       obj.MessageID,
			SessionID:       obj.SessionID,
			Role:            datatypes.MessageRole(obj.Role),
			Content:         obj.Content,
			RelatedDiaryIDs: obj.RelatedDiaryIDs,
			CreatedAt:       time.UnixMilli(int64(obj.CreatedAt)),
		})
	}
	return messages, nil
}

// =============================================================================
// Summarization
// =============================================================================

// NeedsSummarization reports whether the session's message count strictly
// exceeds the threshold.
func (s *WeaviateStore) NeedsSummarization(ctx context.Context, ownerID, sessionID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "NeedsSummarization")
	defer span.End()

	if _, err := s.GetSession(ctx, ownerID, sessionID); err != nil {
		return false, err
	}
	count, err := s.countMessages(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return count > SummarizationThreshold, nil
}

// SummarizeOldMessages compacts the session's history.
//
// # Description
//
// Destructive compaction: all but the newest KeepRecentMessages turns are
// summarized into a 3-5 sentence synopsis via one model call, the synopsis
// overwrites the session's previous summary, and the compacted messages are
// deleted. The summary is their only remaining trace. A no-op when the
// session is at or below the threshold.
func (s *WeaviateStore) SummarizeOldMessages(ctx context.Context, ownerID, sessionID string) error {
	ctx, span := tracer.Start(ctx, "SummarizeOldMessages")
	defer span.End()

	if s.summarizer == nil {
		return fmt.Errorf("no summarizer configured")
	}

	session, err := s.GetSession(ctx, ownerID, sessionID)
	if err != nil {
		return err
	}

	total, err := s.countMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	if total <= SummarizationThreshold {
		return nil
	}

	// The count doubles as the fetch limit. Weaviate caps a Get query
	// without an explicit limit at its default page size, which silently
	// truncates long histories.
	all, err := s.fetchMessages(ctx, sessionID, total)
	if err != nil {
		return err
	}
	if len(all) <= KeepRecentMessages {
		return nil
	}

	// fetchMessages is newest-first: everything past the keep window gets
	// compacted.
	old := all[KeepRecentMessages:]
	sort.SliceStable(old, func(i, j int) bool {
		return old[i].CreatedAt.Before(old[j].CreatedAt)
	})

	transcript := BuildTranscript(session.Summary, old)
	summary, err := s.summarizer.Summarize(ctx, transcript)
	if err != nil {
		return fmt.Errorf("summarization model call failed: %w", err)
	}
	if summary == "" {
		return fmt.Errorf("summarizer returned an empty synopsis")
	}

	session.Summary = summary
	if err := s.replaceSession(ctx, *session); err != nil {
		return fmt.Errorf("failed to persist summary: %w", err)
	}

	// Persisting the summary before deleting means a crash in between
	// duplicates context rather than losing it.
	for _, msg := range old {
		if err := s.deleteMessage(ctx, msg.MessageID); err != nil {
			slog.Warn("Failed to delete compacted message",
				"messageID", msg.MessageID, "error", err)
		}
	}

	slog.Info("Compacted session history",
		"sessionID", sessionID,
		"summarized", len(old),
		"kept", KeepRecentMessages)
	return nil
}

// BuildTranscript renders messages as speaker-labeled lines for the
// summarization prompt, prefixed by the previous synopsis when one exists.
func BuildTranscript(previousSummary string, messages []datatypes.ChatMessage) string {
	var b strings.Builder
	if previousSummary != "" {
		b.WriteString("이전 요약: ")
		b.WriteString(previousSummary)
		b.WriteString("\n\n")
	}
	for _, msg := range messages {
		speaker := "사용자"
		if msg.Role == datatypes.RoleAssistant {
			speaker = "하루"
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func (s *WeaviateStore) countMessages(ctx context.Context, sessionID string) (int, error) {
	result, err := s.client.GraphQL().Aggregate().
		WithClassName(datatypes.ClassChatMessage).
		WithWhere(filters.Where().
			WithPath([]string{"session_id"}).
			WithOperator(filters.Equal).
			WithValueString(sessionID)).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[messageAggregateResponse](result)
	if err != nil {
		return 0, fmt.Errorf("failed to parse message count: %w", err)
	}
	if len(parsed.Aggregate.ChatMessage) == 0 {
		return 0, nil
	}
	return int(parsed.Aggregate.ChatMessage[0].Meta.Count), nil
}

// =============================================================================
// Helpers
// =============================================================================

// replaceSession rewrites the session object in place via its Weaviate id.
func (s *WeaviateStore) replaceSession(ctx context.Context, session datatypes.ChatSession) error {
	// Look up the internal object id by session_id.
	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ClassChatSession).
		WithFields(graphql.Field{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}}).
		WithWhere(sessionOwnerFilter(session.UserID, session.SessionID)).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to locate session object: %w", err)
	}
	parsed, err := datatypes.ParseGraphQLResponse[sessionQueryResponse](result)
	if err != nil {
		return fmt.Errorf("failed to parse session object lookup: %w", err)
	}
	if len(parsed.Get.ChatSession) == 0 {
		return datatypes.NewNotFoundError("session", session.SessionID)
	}
	objectID := parsed.Get.ChatSession[0].Additional.ID

	return s.client.Data().Updater().
		WithClassName(datatypes.ClassChatSession).
		WithID(objectID).
		WithProperties(map[string]interface{}{
			"session_id": session.SessionID,
			"user_id":    session.UserID,
			"title":      session.Title,
			"summary":    session.Summary,
			"is_active":  session.IsActive,
			"created_at": session.CreatedAt.UnixMilli(),
			"updated_at": session.UpdatedAt.UnixMilli(),
		}).
		Do(ctx)
}

func (s *WeaviateStore) deleteMessage(ctx context.Context, messageID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(datatypes.ClassChatMessage).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"message_id"}).
			WithOperator(filters.Equal).
			WithValueString(messageID)).
		Do(ctx)
	return err
}

func ownerFilter(ownerID string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"user_id"}).
		WithOperator(filters.Equal).
		WithValueString(ownerID)
}

func sessionOwnerFilter(ownerID, sessionID string) *filters.WhereBuilder {
	return filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			ownerFilter(ownerID),
			filters.Where().
				WithPath([]string{"session_id"}).
				WithOperator(filters.Equal).
				WithValueString(sessionID),
		})
}

func sessionFields() []graphql.Field {
	return []graphql.Field{
		{Name: "session_id"},
		{Name: "user_id"},
		{Name: "title"},
		{Name: "summary"},
		{Name: "is_active"},
		{Name: "created_at"},
		{Name: "updated_at"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
	}
}

func toSession(obj datatypes.ChatSessionResult) datatypes.ChatSession {
	return datatypes.ChatSession{
		SessionID: obj.SessionID,
		UserID:    obj.UserID,
		Title:     obj.Title,
		Summary:   obj.Summary,
		IsActive:  obj.IsActive,
		CreatedAt: time.UnixMilli(int64(obj.CreatedAt)),
		UpdatedAt: time.UnixMilli(int64(obj.UpdatedAt)),
	}
}

// sessionQueryResponse is the typed shape of a ChatSession query.
type sessionQueryResponse struct {
	Get struct {
		ChatSession []datatypes.ChatSessionResult `json:"ChatSession"`
	} `json:"Get"`
}

// messageQueryResponse is the typed shape of a ChatMessage query.
type messageQueryResponse struct {
	Get struct {
		ChatMessage []datatypes.ChatMessageResult `json:"ChatMessage"`
	} `json:"Get"`
}

// messageAggregateResponse is the typed shape of a ChatMessage count.
type messageAggregateResponse struct {
	Aggregate struct {
		ChatMessage []struct {
			Meta struct {
				Count float64 `json:"count"`
			} `json:"meta"`
		} `json:"ChatMessage"`
	} `json:"Aggregate"`
}

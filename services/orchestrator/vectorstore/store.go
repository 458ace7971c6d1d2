// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package vectorstore persists per-diary embeddings in Weaviate and answers
// owner-scoped similarity queries over them.
package vectorstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"go.opentelemetry.io/otel"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("haru.orchestrator.vectorstore")

// diaryNamespace seeds deterministic object ids. One diary maps to exactly
// one Weaviate object, so re-embedding after an edit replaces rather than
// duplicates.
var diaryNamespace = uuid.MustParse("7f1d3c52-9b64-4aef-9a1e-2d5b8c0e4f17")

// DefaultTopK is the retrieval width before reranking.
const DefaultTopK = 15

// SearchParams scopes one similarity query.
//
// # Fields
//
//   - OwnerID: Required. The owner filter is part of the Weaviate query
//     itself, never a post-filter, so a foreign diary can never appear in
//     the candidate set.
//   - Vector: Query embedding, must be exactly EmbeddingDimensions long.
//   - TopK: Maximum results; must be >= 1.
//   - Range: Optional inclusive date window. End is expanded to end-of-day.
type SearchParams struct {
	OwnerID string
	Vector  []float32
	TopK    int
	Range   *datatypes.DateRange
}

// Store is the persistence boundary for diary embeddings.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// SearchSimilar returns up to TopK diaries ordered by similarity
	// descending. An empty result is not an error.
	SearchSimilar(ctx context.Context, params SearchParams) ([]datatypes.DiarySearchResult, error)

	// UpsertEmbedding writes one diary's vector and stored properties,
	// replacing any previous object for the same diary id.
	UpsertEmbedding(ctx context.Context, record datatypes.DiaryRecord, vector []float32) error

	// DeleteEmbedding removes a diary's embedding. Deleting a diary that
	// was never embedded is not an error.
	DeleteEmbedding(ctx context.Context, ownerID string, diaryID int) error

	// DeleteByOwner removes every embedding belonging to an owner.
	DeleteByOwner(ctx context.Context, ownerID string) (int, error)

	// ListByOwner returns the owner's diaries from stored properties,
	// newest first, capped at limit. Used by the insight endpoints.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]datatypes.DiaryRecord, error)
}

// WeaviateStore implements Store on a Weaviate instance.
//
// # Thread Safety
//
// Safe for concurrent use. The underlying client pools connections.
type WeaviateStore struct {
	client *weaviate.Client
}

var _ Store = (*WeaviateStore)(nil)

// NewWeaviateStore creates a store over an already-connected client.
func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	return &WeaviateStore{client: client}
}

// DiaryObjectID derives the deterministic Weaviate object id for a diary.
func DiaryObjectID(diaryID int) string {
	return uuid.NewSHA1(diaryNamespace, []byte(fmt.Sprintf("diary:%d", diaryID))).String()
}

// SearchSimilar runs an owner-scoped nearVector query.
//
// # Description
//
// The where-clause always contains the owner filter; when a date range is
// present it is joined with AND, with the window expanded to
// [startOfDay(start), endOfDay(end)] in Unix milliseconds. Scores are
// Weaviate certainties, already in [0,1] and ordered descending.
//
// # Errors
//
//   - ValidationError when TopK < 1 or the vector has the wrong length.
//   - Transport or GraphQL errors wrapped with context.
func (s *WeaviateStore) SearchSimilar(ctx context.Context, params SearchParams) ([]datatypes.DiarySearchResult, error) {
	ctx, span := tracer.Start(ctx, "SearchSimilar")
	defer span.End()

	if params.TopK < 1 {
		return nil, datatypes.NewValidationError("topK", "must be at least 1")
	}
	if len(params.Vector) != datatypes.EmbeddingDimensions {
		return nil, datatypes.NewValidationError("vector",
			fmt.Sprintf("expected %d dimensions, got %d", datatypes.EmbeddingDimensions, len(params.Vector)))
	}
	if params.OwnerID == "" {
		return nil, datatypes.NewValidationError("ownerID", "must not be empty")
	}

	where := ownerFilter(params.OwnerID)
	if params.Range != nil {
		startMs := datatypes.StartOfDay(params.Range.Start).UnixMilli()
		endMs := datatypes.EndOfDay(params.Range.End).UnixMilli()

		afterStart := filters.Where().
			WithPath([]string{"diary_date"}).
			WithOperator(filters.GreaterThanEqual).
			WithValueNumber(float64(startMs))
		beforeEnd := filters.Where().
			WithPath([]string{"diary_date"}).
			WithOperator(filters.LessThanEqual).
			WithValueNumber(float64(endMs))

		where = filters.Where().
			WithOperator(filters.And).
			WithOperands([]*filters.WhereBuilder{where, afterStart, beforeEnd})
	}

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(params.Vector)

	fields := []graphql.Field{
		{Name: "diary_id"},
		{Name: "title"},
		{Name: "content"},
		{Name: "mood_color"},
		{Name: "diary_date"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ClassDiaryEmbedding).
		WithFields(fields...).
		WithWhere(where).
		WithNearVector(nearVector).
		WithLimit(params.TopK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("diary similarity search failed: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[diaryQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse diary search results: %w", err)
	}

	results := make([]datatypes.DiarySearchResult, 0, len(parsed.Get.DiaryEmbedding))
	for _, obj := range parsed.Get.DiaryEmbedding {
		color, err := datatypes.ParseMoodColor(obj.MoodColor)
		if err != nil {
			slog.Warn("Skipping diary with unknown mood color",
				"diaryID", obj.DiaryID, "color", obj.MoodColor)
			continue
		}
		results = append(results, datatypes.DiarySearchResult{
			DiaryID: obj.DiaryID,
			Title:   obj.Title,
			Content: obj.Content,
			Color:   color,
			Date:    time.UnixMilli(int64(obj.DiaryDate)),
			Score:   obj.Additional.Certainty,
		})
	}

	slog.Debug("Diary similarity search complete",
		"ownerID", params.OwnerID,
		"topK", params.TopK,
		"dateFiltered", params.Range != nil,
		"results", len(results))
	return results, nil
}

// UpsertEmbedding writes the diary's vector under its deterministic object
// id, so a second call for the same diary replaces the first.
//
// # Errors
//
//   - ValidationError for a wrong-length vector or missing owner.
//   - Transport errors wrapped with context.
func (s *WeaviateStore) UpsertEmbedding(ctx context.Context, record datatypes.DiaryRecord, vector []float32) error {
	ctx, span := tracer.Start(ctx, "UpsertEmbedding")
	defer span.End()

	if len(vector) != datatypes.EmbeddingDimensions {
		return datatypes.NewValidationError("vector",
			fmt.Sprintf("expected %d dimensions, got %d", datatypes.EmbeddingDimensions, len(vector)))
	}
	if record.UserID == "" {
		return datatypes.NewValidationError("userID", "must not be empty")
	}

	objectID := DiaryObjectID(record.DiaryID)
	properties := map[string]interface{}{
		"diary_id":   record.DiaryID,
		"user_id":    record.UserID,
		"title":      record.Title,
		"content":    record.Content,
		"mood_color": string(record.Color),
		"diary_date": record.Date.UnixMilli(),
	}

	// Replace in place: a PUT-style update rewrites properties and vector
	// under the fixed id in one call. A 404 means the diary was never
	// embedded, handled by the create fallback.
	err := s.client.Data().Updater().
		WithClassName(datatypes.ClassDiaryEmbedding).
		WithID(objectID).
		WithProperties(properties).
		WithVector(vector).
		Do(ctx)
	if err != nil && strings.Contains(err.Error(), "404") {
		_, err = s.client.Data().Creator().
			WithClassName(datatypes.ClassDiaryEmbedding).
			WithID(objectID).
			WithProperties(properties).
			WithVector(vector).
			Do(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert diary embedding %d: %w", record.DiaryID, err)
	}

	slog.Info("Upserted diary embedding",
		"diaryID", record.DiaryID, "ownerID", record.UserID)
	return nil
}

// DeleteEmbedding removes one diary's embedding, scoped by owner so a caller
// can never delete across owner boundaries. Idempotent.
func (s *WeaviateStore) DeleteEmbedding(ctx context.Context, ownerID string, diaryID int) error {
	ctx, span := tracer.Start(ctx, "DeleteEmbedding")
	defer span.End()

	diaryFilter := filters.Where().
		WithPath([]string{"diary_id"}).
		WithOperator(filters.Equal).
		WithValueInt(int64(diaryID))
	where := filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{ownerFilter(ownerID), diaryFilter})

	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(datatypes.ClassDiaryEmbedding).
		WithOutput("minimal").
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete diary embedding %d: %w", diaryID, err)
	}

	slog.Info("Deleted diary embedding", "diaryID", diaryID, "ownerID", ownerID)
	return nil
}

// DeleteByOwner removes every embedding the owner has. Returns the count of
// deleted objects.
func (s *WeaviateStore) DeleteByOwner(ctx context.Context, ownerID string) (int, error) {
	ctx, span := tracer.Start(ctx, "DeleteByOwner")
	defer span.End()

	if ownerID == "" {
		return 0, datatypes.NewValidationError("ownerID", "must not be empty")
	}

	resp, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(datatypes.ClassDiaryEmbedding).
		WithOutput("minimal").
		WithWhere(ownerFilter(ownerID)).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete embeddings for owner: %w", err)
	}

	deleted := 0
	if resp != nil && resp.Results != nil {
		deleted = int(resp.Results.Successful)
	}
	slog.Info("Deleted all diary embeddings for owner",
		"ownerID", ownerID, "deleted", deleted)
	return deleted, nil
}

// ListByOwner reads the owner's diaries back from stored properties, sorted
// by diary date descending.
func (s *WeaviateStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]datatypes.DiaryRecord, error) {
	ctx, span := tracer.Start(ctx, "ListByOwner")
	defer span.End()

	if limit < 1 {
		return nil, datatypes.NewValidationError("limit", "must be at least 1")
	}

	sortBy := graphql.Sort{
		Path:  []string{"diary_date"},
		Order: graphql.Desc,
	}
	fields := []graphql.Field{
		{Name: "diary_id"},
		{Name: "user_id"},
		{Name: "title"},
		{Name: "content"},
		{Name: "mood_color"},
		{Name: "diary_date"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(datatypes.ClassDiaryEmbedding).
		WithFields(fields...).
		WithWhere(ownerFilter(ownerID)).
		WithSort(sortBy).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list diaries for owner: %w", err)
	}

	parsed, err := datatypes.ParseGraphQLResponse[diaryQueryResponse](result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse diary list: %w", err)
	}

	records := make([]datatypes.DiaryRecord, 0, len(parsed.Get.DiaryEmbedding))
	for _, obj := range parsed.Get.DiaryEmbedding {
		color, err := datatypes.ParseMoodColor(obj.MoodColor)
		if err != nil {
			continue
		}
		records = append(records, datatypes.DiaryRecord{
			DiaryID: obj.DiaryID,
			UserID:  obj.UserID,
			Title:   obj.Title,
			Content: obj.Content,
			Color:   color,
			Date:    time.UnixMilli(int64(obj.DiaryDate)),
		})
	}
	return records, nil
}

// ownerFilter is the filter every diary query carries.
func ownerFilter(ownerID string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"user_id"}).
		WithOperator(filters.Equal).
		WithValueString(ownerID)
}

// diaryQueryResponse is the typed shape of a DiaryEmbedding query.
type diaryQueryResponse struct {
	Get struct {
		DiaryEmbedding []datatypes.DiaryEmbeddingResult `json:"DiaryEmbedding"`
	} `json:"Get"`
}

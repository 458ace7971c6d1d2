// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"context"
	"log/slog"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Class Names
// =============================================================================

const (
	// ClassDiaryEmbedding holds one vector per diary, keyed by a
	// deterministic object id derived from the diary id.
	ClassDiaryEmbedding = "DiaryEmbedding"

	// ClassResponseCache holds semantic-cache entries: query embeddings
	// paired with full generated responses.
	ClassResponseCache = "ResponseCache"

	// ClassChatSession holds session metadata.
	ClassChatSession = "ChatSession"

	// ClassChatMessage holds individual chat turns.
	ClassChatMessage = "ChatMessage"
)

// EmbeddingDimensions is the fixed vector length for every stored embedding.
// Matches OpenAI text-embedding-3-small.
const EmbeddingDimensions = 1536

// =============================================================================
// Class Schemas
// =============================================================================

func boolPtr(b bool) *bool { return &b }

// GetDiaryEmbeddingSchema returns the Weaviate class for per-diary vectors.
//
// # Description
//
// Vectorizer is "none": vectors are computed by the embedding client and
// supplied at write time. user_id and diary_date are filterable because
// every search is scoped by owner and optionally by date. The owner filter
// lives in the query itself, not a post-filter.
func GetDiaryEmbeddingSchema() *models.Class {
	filterable := boolPtr(true)

	return &models.Class{
		Class:       ClassDiaryEmbedding,
		Description: "One embedding per diary entry, scoped by owner.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "diary_id",
				DataType:        []string{"int"},
				Description:     "Unique id of the diary this vector belongs to.",
				IndexFilterable: filterable,
			},
			{
				Name:            "user_id",
				DataType:        []string{"text"},
				Description:     "Owning user. Every query filters on this.",
				IndexFilterable: filterable,
				Tokenization:    "field",
			},
			{
				Name:         "title",
				DataType:     []string{"text"},
				Description:  "Diary title, returned with search results.",
				Tokenization: "word",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Diary content (plaintext at this layer).",
				Tokenization: "word",
			},
			{
				Name:            "mood_color",
				DataType:        []string{"text"},
				Description:     "One of the four mood colors.",
				IndexFilterable: filterable,
				Tokenization:    "field",
			},
			{
				Name:            "diary_date",
				DataType:        []string{"number"},
				Description:     "Entry date as Unix milliseconds, for range filters.",
				IndexFilterable: filterable,
			},
		},
	}
}

// GetResponseCacheSchema returns the Weaviate class for semantic-cache
// entries. The vector is the query embedding; lookups are nearVector
// searches scoped by user_id with a certainty threshold.
func GetResponseCacheSchema() *models.Class {
	filterable := boolPtr(true)

	return &models.Class{
		Class:       ClassResponseCache,
		Description: "Cached query/response pairs keyed by query embedding.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "user_id",
				DataType:        []string{"text"},
				Description:     "Cache entries are only ever matched within one owner.",
				IndexFilterable: filterable,
				Tokenization:    "field",
			},
			{
				Name:         "query",
				DataType:     []string{"text"},
				Description:  "Original query text.",
				Tokenization: "word",
			},
			{
				Name:         "response",
				DataType:     []string{"text"},
				Description:  "Full generated response.",
				Tokenization: "word",
			},
			{
				Name:            "diary_ids",
				DataType:        []string{"int[]"},
				Description:     "Diaries the response was grounded on; used for invalidation.",
				IndexFilterable: filterable,
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds, for TTL expiry and oldest-first eviction.",
				IndexFilterable: filterable,
			},
		},
	}
}

// GetChatSessionSchema returns the Weaviate class for session metadata.
func GetChatSessionSchema() *models.Class {
	filterable := boolPtr(true)

	return &models.Class{
		Class:       ClassChatSession,
		Description: "A conversation session between a user and the agent.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "session_id",
				DataType:        []string{"text"},
				Description:     "Generated UUID for the session.",
				IndexFilterable: filterable,
				Tokenization:    "field",
			},
			{
				Name:            "user_id",
				DataType:        []string{"text"},
				Description:     "Owning user.",
				IndexFilterable: filterable,
				Tokenization:    "field",
			},
			{
				Name:         "title",
				DataType:     []string{"text"},
				Description:  "Optional session title.",
				Tokenization: "word",
			},
			{
				Name:         "summary",
				DataType:     []string{"text"},
				Description:  "Synopsis produced by summarization compaction.",
				Tokenization: "word",
			},
			{
				Name:            "is_active",
				DataType:        []string{"boolean"},
				Description:     "False once soft-deactivated.",
				IndexFilterable: filterable,
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds.",
				IndexFilterable: filterable,
			},
			{
				Name:            "updated_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds; bumped on every message append.",
				IndexFilterable: filterable,
			},
		},
	}
}

// GetChatMessageSchema returns the Weaviate class for chat turns.
func GetChatMessageSchema() *models.Class {
	filterable := boolPtr(true)

	return &models.Class{
		Class:       ClassChatMessage,
		Description: "A single turn within a chat session.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexNullState:  true,
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "message_id",
				DataType:        []string{"text"},
				Description:     "Generated UUID for the message.",
				IndexFilterable: filterable,
				Tokenization:    "field",
			},
			{
				Name:            "session_id",
				DataType:        []string{"text"},
				Description:     "Parent session.",
				IndexFilterable: filterable,
				Tokenization:    "field",
			},
			{
				Name:            "role",
				DataType:        []string{"text"},
				Description:     "user, assistant, or system.",
				IndexFilterable: filterable,
				Tokenization:    "field",
			},
			{
				Name:         "content",
				DataType:     []string{"text"},
				Description:  "Message text.",
				Tokenization: "word",
			},
			{
				Name:            "related_diary_ids",
				DataType:        []string{"int[]"},
				Description:     "Diaries that grounded an assistant answer.",
				IndexFilterable: filterable,
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds; messages are totally ordered by this.",
				IndexFilterable: filterable,
			},
		},
	}
}

// =============================================================================
// Schema Bootstrap
// =============================================================================

// EnsureSchemas creates every class this service depends on, skipping ones
// that already exist. Called once at startup.
//
// # Outputs
//
//   - error: Non-nil only for failures other than "already exists".
func EnsureSchemas(ctx context.Context, client *weaviate.Client) error {
	schemas := []*models.Class{
		GetDiaryEmbeddingSchema(),
		GetResponseCacheSchema(),
		GetChatSessionSchema(),
		GetChatMessageSchema(),
	}

	for _, class := range schemas {
		exists, err := client.Schema().ClassExistenceChecker().
			WithClassName(class.Class).
			Do(ctx)
		if err != nil {
			return err
		}
		if exists {
			slog.Debug("Weaviate class already exists", "class", class.Class)
			continue
		}

		err = client.Schema().ClassCreator().WithClass(class).Do(ctx)
		if err != nil {
			// Concurrent startup of two replicas can race the existence
			// check; treat the duplicate as success.
			if strings.Contains(err.Error(), "already exists") {
				slog.Debug("Weaviate class created concurrently", "class", class.Class)
				continue
			}
			return err
		}
		slog.Info("Created Weaviate class", "class", class.Class)
	}
	return nil
}

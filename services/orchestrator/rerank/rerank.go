// Copyright (C) 2026 Haru AI (oss@haru-ai.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rerank reorders retrieved diary candidates by relevance to the
// query, via either a fast lexical heuristic or a model scoring call.
package rerank

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"

	"github.com/haru-ai/haru/services/orchestrator/datatypes"
)

var tracer = otel.Tracer("haru.orchestrator.rerank")

const (
	// CandidateCap bounds how many candidates get scored. Reranking cost is
	// linear in candidates for the heuristic and worse for the model.
	CandidateCap = 10

	// complexQueryRunes and complexCandidateCount gate the model strategy.
	complexQueryRunes     = 30
	complexCandidateCount = 5

	titleMatchBonus   = 0.05
	contentMatchBonus = 0.02
	moodMatchBonus    = 0.05
	maxRecencyBonus   = 0.1
	recencyWindowDays = 365
)

// Reranker reorders candidates for one query.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []datatypes.DiarySearchResult, topK int) []datatypes.DiarySearchResult
}

// moodVocabulary maps query words to the mood color they hint at. A query
// mentioning stress should float red diaries, not just lexical matches.
var moodVocabulary = map[string]datatypes.MoodColor{
	"화":      datatypes.MoodRed,
	"화나":     datatypes.MoodRed,
	"짜증":     datatypes.MoodRed,
	"스트레스":   datatypes.MoodRed,
	"분노":     datatypes.MoodRed,
	"angry":  datatypes.MoodRed,
	"stress": datatypes.MoodRed,

	"행복":      datatypes.MoodYellow,
	"기뻐":      datatypes.MoodYellow,
	"신나":      datatypes.MoodYellow,
	"즐거":      datatypes.MoodYellow,
	"happy":   datatypes.MoodYellow,
	"excited": datatypes.MoodYellow,

	"슬퍼":        datatypes.MoodBlue,
	"슬프":        datatypes.MoodBlue,
	"우울":        datatypes.MoodBlue,
	"눈물":        datatypes.MoodBlue,
	"sad":       datatypes.MoodBlue,
	"depressed": datatypes.MoodBlue,

	"평온":    datatypes.MoodGreen,
	"편안":    datatypes.MoodGreen,
	"차분":    datatypes.MoodGreen,
	"calm":  datatypes.MoodGreen,
	"peace": datatypes.MoodGreen,
}

// emotionalVocabulary flags queries that deserve model reranking even when
// short. Superset of the mood words plus general feeling vocabulary.
var emotionalVocabulary = []string{
	"기분", "감정", "마음", "느낌", "행복", "슬퍼", "슬프", "우울", "화나",
	"짜증", "스트레스", "불안", "외로", "피곤",
	"feel", "feeling", "emotion", "mood", "happy", "sad", "angry",
	"anxious", "lonely", "tired",
}

// temporalVocabulary flags queries about change over time, where ordering by
// raw similarity tends to be weakest.
var temporalVocabulary = []string{
	"지난", "최근", "요즘", "어제", "오늘", "이번", "저번", "언제", "동안",
	"recently", "lately", "yesterday", "week", "month", "days", "when",
}

// =============================================================================
// Heuristic Strategy
// =============================================================================

// HeuristicReranker scores candidates with cheap lexical and temporal
// signals on top of the original similarity. Pure computation, no I/O.
type HeuristicReranker struct {
	now func() time.Time
}

var _ Reranker = (*HeuristicReranker)(nil)

// NewHeuristicReranker creates the heuristic strategy.
func NewHeuristicReranker() *HeuristicReranker {
	return &HeuristicReranker{now: time.Now}
}

// Rerank reorders candidates by heuristic score.
//
// # Description
//
// Pass-through when candidates already fit topK: the original similarity
// ordering is kept and no scoring cost is paid. Otherwise the pool is capped
// at CandidateCap and rescored: similarity + keyword overlap (title terms
// weigh more than content terms) + linear recency decay over a year + a
// bonus for diaries whose color matches mood words in the query. Scores are
// clamped to 1.0.
func (r *HeuristicReranker) Rerank(ctx context.Context, query string, candidates []datatypes.DiarySearchResult, topK int) []datatypes.DiarySearchResult {
	_, span := tracer.Start(ctx, "HeuristicRerank")
	defer span.End()

	if len(candidates) <= topK {
		return candidates
	}
	pool := candidates
	if len(pool) > CandidateCap {
		pool = pool[:CandidateCap]
	}

	terms := queryTerms(query)
	queryMoods := moodHints(query)
	now := r.now()

	scored := make([]datatypes.DiarySearchResult, len(pool))
	copy(scored, pool)
	for i := range scored {
		scored[i].Score = clamp1(r.score(scored[i], terms, queryMoods, now))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

func (r *HeuristicReranker) score(d datatypes.DiarySearchResult, terms []string, queryMoods map[datatypes.MoodColor]bool, now time.Time) float64 {
	score := d.Score

	title := strings.ToLower(d.Title)
	content := strings.ToLower(d.Content)
	for _, term := range terms {
		if strings.Contains(title, term) {
			score += titleMatchBonus
		} else if strings.Contains(content, term) {
			score += contentMatchBonus
		}
	}

	// Linear decay: today gets the full bonus, a year ago gets none.
	ageDays := now.Sub(d.Date).Hours() / 24
	if ageDays >= 0 && ageDays < recencyWindowDays {
		score += maxRecencyBonus * (1 - ageDays/recencyWindowDays)
	}

	if queryMoods[d.Color] {
		score += moodMatchBonus
	}
	return score
}

// =============================================================================
// Model Strategy
// =============================================================================

// Scorer is the model call the model strategy depends on. Implemented by
// the generation engine's provider client.
type Scorer interface {
	// ScoreRelevance rates each summary's relevance to the query on a 1-10
	// scale, keyed by candidate index. Missing indices are allowed.
	ScoreRelevance(ctx context.Context, query string, summaries []string) (map[int]int, error)
}

// summaryMaxChars caps diary content sent to the scoring model.
const summaryMaxChars = 300

// ModelReranker asks a language model to score each candidate.
type ModelReranker struct {
	scorer Scorer
}

var _ Reranker = (*ModelReranker)(nil)

// NewModelReranker creates the model strategy.
func NewModelReranker(scorer Scorer) *ModelReranker {
	return &ModelReranker{scorer: scorer}
}

// Rerank scores candidates via the model, normalizing 1-10 to 0-1.
//
// # Description
//
// Unscored candidates keep their original similarity. Any provider error
// falls back wholesale to the original similarity ordering; reranking is a
// quality optimization and must never fail a request.
func (r *ModelReranker) Rerank(ctx context.Context, query string, candidates []datatypes.DiarySearchResult, topK int) []datatypes.DiarySearchResult {
	ctx, span := tracer.Start(ctx, "ModelRerank")
	defer span.End()

	if len(candidates) <= topK {
		return candidates
	}
	pool := candidates
	if len(pool) > CandidateCap {
		pool = pool[:CandidateCap]
	}

	summaries := make([]string, len(pool))
	for i, d := range pool {
		summaries[i] = summarize(d)
	}

	scores, err := r.scorer.ScoreRelevance(ctx, query, summaries)
	if err != nil {
		slog.Warn("Model reranking failed, falling back to similarity order", "error", err)
		if len(pool) > topK {
			return pool[:topK]
		}
		return pool
	}

	scored := make([]datatypes.DiarySearchResult, len(pool))
	copy(scored, pool)
	for i := range scored {
		if raw, ok := scores[i]; ok {
			scored[i].Score = normalizeModelScore(raw)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// summarize builds the capped text sent to the scoring model.
func summarize(d datatypes.DiarySearchResult) string {
	content := d.Content
	if len(content) > summaryMaxChars {
		cut := content[:summaryMaxChars]
		// Do not split a multibyte rune at the cap.
		for len(cut) > 0 && !utf8.ValidString(cut) {
			cut = cut[:len(cut)-1]
		}
		content = cut
	}
	return "[" + d.Date.Format("2006-01-02") + "] " + d.Title + " (" + d.Color.Label() + "): " + content
}

// normalizeModelScore maps the model's 1-10 rating onto [0,1].
func normalizeModelScore(raw int) float64 {
	if raw < 1 {
		raw = 1
	}
	if raw > 10 {
		raw = 10
	}
	return float64(raw) / 10
}

// =============================================================================
// Strategy Selection
// =============================================================================

// ShouldUseModelReranking decides between the strategies.
//
// # Description
//
// The model is worth its latency for complex queries over a large pool, or
// whenever the query carries emotional or temporal vocabulary: those are
// the cases where raw cosine similarity ranks worst. Everything else takes
// the heuristic. A cost tradeoff, not a correctness requirement.
func ShouldUseModelReranking(query string, candidateCount int) bool {
	lower := strings.ToLower(query)

	complex := utf8.RuneCountInString(query) >= complexQueryRunes &&
		candidateCount > complexCandidateCount
	if complex {
		return true
	}

	for _, word := range emotionalVocabulary {
		if strings.Contains(lower, word) {
			return true
		}
	}
	for _, word := range temporalVocabulary {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// SelectingReranker routes each call through ShouldUseModelReranking.
type SelectingReranker struct {
	heuristic *HeuristicReranker
	model     *ModelReranker
}

var _ Reranker = (*SelectingReranker)(nil)

// NewSelectingReranker wires both strategies behind one Reranker.
func NewSelectingReranker(scorer Scorer) *SelectingReranker {
	return &SelectingReranker{
		heuristic: NewHeuristicReranker(),
		model:     NewModelReranker(scorer),
	}
}

// Rerank picks the strategy per call.
func (r *SelectingReranker) Rerank(ctx context.Context, query string, candidates []datatypes.DiarySearchResult, topK int) []datatypes.DiarySearchResult {
	if ShouldUseModelReranking(query, len(candidates)) && r.model.scorer != nil {
		return r.model.Rerank(ctx, query, candidates, topK)
	}
	return r.heuristic.Rerank(ctx, query, candidates, topK)
}

// =============================================================================
// Helpers
// =============================================================================

// queryTerms extracts lowercase keyword terms from the query, dropping
// single runes.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "?!.,;:")
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// moodHints returns the mood colors suggested by the query text.
func moodHints(query string) map[datatypes.MoodColor]bool {
	lower := strings.ToLower(query)
	hints := make(map[datatypes.MoodColor]bool)
	for word, color := range moodVocabulary {
		if strings.Contains(lower, word) {
			hints[color] = true
		}
	}
	return hints
}

func clamp1(v float64) float64 {
	if v > 1.0 {
		return 1.0
	}
	return v
}

package usecase

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/utils/logging"
)

const (
	// searchFetchBound caps how many memories are pulled for a substring
	// search before local filtering
	searchFetchBound = 100

	// retrievalContextMessages is how many trailing context messages
	// contribute keywords to the scorer
	retrievalContextMessages = 5

	// retrievalKeywordMinLen filters trivial words out of the synthesis
	// derived keyword set
	retrievalKeywordMinLen = 4
)

// RetrievalOutcome distinguishes "no relevant memories" from "memory
// subsystem unavailable"
type RetrievalOutcome struct {
	Memories []*model.RetrievedMemory
	Degraded bool
}

// RetrieveContext fetches durable memories and re-ranks them by lexical
// overlap with the current synthesis output and recent dialogue. Backend
// failure yields an empty degraded outcome; retrieval must never block
// the conversation.
func (uc *UseCases) RetrieveContext(ctx context.Context, syn *model.SynthesisResult, recent []*model.Message, limit int) *RetrievalOutcome {
	if limit <= 0 {
		limit = 10
	}

	candidates, err := uc.backend.Memories(ctx, limit)
	if err != nil {
		logging.From(ctx).Warn("memory retrieval failed", "error", err)
		return &RetrievalOutcome{Degraded: true}
	}

	keywords := buildKeywordSet(syn, recent)
	if len(keywords) == 0 {
		return &RetrievalOutcome{}
	}

	scored := make([]*model.RetrievedMemory, 0, len(candidates))
	for _, m := range candidates {
		score := scoreMemory(m.Content, keywords)
		if score <= 0 {
			continue
		}
		scored = append(scored, &model.RetrievedMemory{
			ID:        m.ID,
			Content:   m.Content,
			Relevance: score,
			CreatedAt: m.CreatedAt,
		})
	}

	// Stable sort keeps input (recency) order among ties
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Relevance > scored[j].Relevance
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return &RetrievalOutcome{Memories: scored}
}

// SearchMemories performs case-insensitive substring matching over the
// memory set, for debug/admin use
func (uc *UseCases) SearchMemories(ctx context.Context, query string, limit int) ([]*model.RetrievedMemory, error) {
	if limit <= 0 {
		limit = 10
	}

	candidates, err := uc.backend.Memories(ctx, searchFetchBound)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	var matched []*model.RetrievedMemory
	for _, m := range candidates {
		if needle == "" || strings.Contains(strings.ToLower(m.Content), needle) {
			matched = append(matched, m)
			if len(matched) >= limit {
				break
			}
		}
	}
	return matched, nil
}

// buildKeywordSet collects words >3 chars from extracted-memory contents
// and elaboration topics, plus every word of the last few context
// messages
func buildKeywordSet(syn *model.SynthesisResult, recent []*model.Message) map[string]struct{} {
	keywords := make(map[string]struct{})

	addLong := func(text string) {
		for _, w := range tokenize(text) {
			if len(w) >= retrievalKeywordMinLen {
				keywords[w] = struct{}{}
			}
		}
	}

	if syn != nil {
		for _, m := range syn.Memories {
			addLong(m.Content)
		}
		for _, topic := range syn.ElaborationTopics {
			addLong(topic)
		}
	}

	if len(recent) > retrievalContextMessages {
		recent = recent[len(recent)-retrievalContextMessages:]
	}
	for _, msg := range recent {
		for _, w := range tokenize(msg.Content) {
			keywords[w] = struct{}{}
		}
	}

	return keywords
}

// scoreMemory counts keyword overlap normalized by the square root of
// the memory's word count, so long memories are neither penalized for
// length nor rewarded purely additively
func scoreMemory(content string, keywords map[string]struct{}) float64 {
	words := tokenize(content)
	if len(words) == 0 {
		return 0
	}

	overlap := 0
	for _, w := range words {
		if _, ok := keywords[w]; ok {
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}
	return float64(overlap) / math.Sqrt(float64(len(words)))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

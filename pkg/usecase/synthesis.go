package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"text/template"

	"github.com/m-mizutani/goerr/v2"
	"github.com/reverie-dev/reverie/pkg/domain/model"
	"github.com/reverie-dev/reverie/pkg/domain/types"
	"github.com/reverie-dev/reverie/pkg/utils/logging"
)

//go:embed prompt/synthesis_system.md
var synthesisPromptTmpl string

var synthesisPrompt = template.Must(template.New("synthesis").Parse(synthesisPromptTmpl))

// synthesisContextSize is how many recent messages are serialized into
// the synthesis prompt
const synthesisContextSize = 10

// SynthesisOutcome distinguishes "nothing extracted" from "memory
// subsystem unavailable". Both carry a usable result; Degraded only
// matters for observability.
type SynthesisOutcome struct {
	Result   *model.SynthesisResult
	Degraded bool
}

func degradedSynthesis() *SynthesisOutcome {
	return &SynthesisOutcome{Result: model.EmptySynthesisResult(), Degraded: true}
}

type synthesisPromptData struct {
	Memories    []*model.RetrievedMemory
	Context     []promptLine
	UserMessage string
}

type promptLine struct {
	Role    string
	Content string
}

// synthesisWire is the JSON shape the upstream model is instructed to
// produce. All fields are validated before entering the domain model.
type synthesisWire struct {
	Memories []struct {
		Content    string  `json:"content"`
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	} `json:"memories"`
	FollowUpQuestions []string `json:"follow_up_questions"`
	ElaborationTopics []string `json:"elaboration_topics"`
	PreviousTopics    []string `json:"previous_topics"`
	Confidence        float64  `json:"confidence"`
	ShouldTerminate   bool     `json:"should_terminate"`
	TerminationReason string   `json:"termination_reason"`
	IsMinimalResponse bool     `json:"is_minimal_response"`
}

// Synthesize asks the backend's language model to extract candidate
// memories and conversational signals from the latest user message. It
// never fails: any backend or parse error yields the empty result so the
// turn proceeds in degraded mode.
//
// The exchange runs on a disposable thread with memory mode off, so the
// exploratory analysis never pollutes the user's dialogue nor triggers
// an auto-memory write. The thread is deleted on every exit path.
func (uc *UseCases) Synthesize(ctx context.Context, userMessage string, recent []*model.Message, priorMemories []*model.RetrievedMemory) *SynthesisOutcome {
	logger := logging.From(ctx)

	prompt, err := renderSynthesisPrompt(userMessage, recent, priorMemories)
	if err != nil {
		logger.Warn("failed to render synthesis prompt", "error", err)
		return degradedSynthesis()
	}

	threadID, err := uc.backend.CreateThread(ctx)
	if err != nil {
		logger.Warn("failed to create synthesis thread", "error", err)
		return degradedSynthesis()
	}
	defer func() {
		// Best-effort cleanup; a leaked disposable thread is harmless
		if err := uc.backend.DeleteThread(ctx, threadID); err != nil {
			logger.Warn("failed to delete synthesis thread",
				"threadID", threadID, "error", err)
		}
	}()

	reply, err := uc.backend.SendMessage(ctx, &model.BackendMessage{
		ThreadID:   threadID,
		Content:    prompt,
		MemoryMode: types.MemoryModeOff,
	})
	if err != nil {
		logger.Warn("synthesis exchange failed", "error", err)
		return degradedSynthesis()
	}

	result, err := parseSynthesisResponse(reply.Content)
	if err != nil {
		logger.Warn("failed to parse synthesis response", "error", err)
		return degradedSynthesis()
	}

	return &SynthesisOutcome{Result: result}
}

func renderSynthesisPrompt(userMessage string, msgs []*model.Message, memories []*model.RetrievedMemory) (string, error) {
	if len(msgs) > synthesisContextSize {
		msgs = msgs[len(msgs)-synthesisContextSize:]
	}

	data := synthesisPromptData{
		Memories:    memories,
		UserMessage: userMessage,
	}
	for _, m := range msgs {
		data.Context = append(data.Context, promptLine{
			Role:    m.Role.String(),
			Content: m.Content,
		})
	}

	var buf bytes.Buffer
	if err := synthesisPrompt.Execute(&buf, data); err != nil {
		return "", goerr.Wrap(err, "failed to execute synthesis template")
	}
	return buf.String(), nil
}

func parseSynthesisResponse(text string) (*model.SynthesisResult, error) {
	raw, ok := extractJSONObject(text)
	if !ok {
		return nil, goerr.New("no JSON object in synthesis response",
			goerr.V("length", len(text)))
	}

	var wire synthesisWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal synthesis response")
	}

	result := &model.SynthesisResult{
		FollowUpQuestions: wire.FollowUpQuestions,
		ElaborationTopics: wire.ElaborationTopics,
		PreviousTopics:    wire.PreviousTopics,
		Confidence:        clamp01(wire.Confidence),
		ShouldTerminate:   wire.ShouldTerminate,
		IsMinimalResponse: wire.IsMinimalResponse,
	}

	if wire.ShouldTerminate {
		result.TerminationReason = types.NormalizeTerminationReason(wire.TerminationReason)
	}

	for _, m := range wire.Memories {
		category := types.MemoryCategory(m.Category)
		if !category.IsValid() {
			// Unknown categories are dropped, never defaulted
			continue
		}
		result.Memories = append(result.Memories, model.ExtractedMemory{
			Content:    m.Content,
			Category:   category,
			Confidence: clamp01(m.Confidence),
		})
	}

	return result, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// extractJSONObject returns the first balanced top-level JSON object in
// text. Brace counting skips string literals and escape sequences, so
// braces inside extracted content do not break the scan.
func extractJSONObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i, r := range text {
		if start >= 0 && inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start >= 0 {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		case '"':
			if start >= 0 {
				inString = true
			}
		}
	}
	return "", false
}

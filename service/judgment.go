package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
)

// ErrJudgmentUnavailable indicates the judgment service could not produce
// verdicts at all; callers degrade to "no match" per pair
var ErrJudgmentUnavailable = errors.New("judgment service unavailable")

// Verdict is a typed same-concept decision for one candidate pair
type Verdict int

const (
	// VerdictUnavailable means no verdict could be obtained; callers must
	// treat it conservatively as "not the same concept"
	VerdictUnavailable Verdict = iota
	// VerdictMatched means the two descriptions refer to the same concept
	VerdictMatched
	// VerdictNotMatched means the two descriptions are distinct concepts
	VerdictNotMatched
)

// JudgmentPair is one candidate pair submitted for a same-concept verdict
type JudgmentPair struct {
	ExistingName         string
	ExistingDescription  string
	CandidateName        string
	CandidateDescription string
}

// Judge decides, per candidate pair, whether both sides describe the same
// legal concept. Implementations are backed by a generative text model and
// must tolerate partial or malformed responses.
type Judge interface {
	JudgeBatch(ctx context.Context, pairs []JudgmentPair) ([]Verdict, error)
}

// GeminiJudge implements Judge using the Gemini API
type GeminiJudge struct {
	client *genai.Client
	model  string
	log    *zap.SugaredLogger
}

// NewGeminiJudge creates a new Gemini-backed judge
func NewGeminiJudge(client *genai.Client, model string, log *zap.SugaredLogger) *GeminiJudge {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiJudge{client: client, model: model, log: log}
}

// JudgeBatch sends all pairs in a single model call and parses one verdict
// per pair. Pairs missing from the response are treated as "no".
func (j *GeminiJudge) JudgeBatch(ctx context.Context, pairs []JudgmentPair) ([]Verdict, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	if j.client == nil {
		return unavailableVerdicts(len(pairs)), ErrJudgmentUnavailable
	}

	prompt := buildJudgmentPrompt(pairs)
	model := j.client.GenerativeModel(j.model)

	var text string
	backoff := initialBackoff
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return unavailableVerdicts(len(pairs)), ErrJudgmentUnavailable
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			if j.log != nil {
				j.log.Warnw("judgment call failed", "attempt", attempt+1, "error", err)
			}
			continue
		}
		text = responseText(resp)
		if text != "" {
			break
		}
	}

	if text == "" {
		return unavailableVerdicts(len(pairs)), ErrJudgmentUnavailable
	}

	return parseVerdicts(text, len(pairs)), nil
}

// buildJudgmentPrompt renders the numbered pair list the model answers
func buildJudgmentPrompt(pairs []JudgmentPair) string {
	var b strings.Builder
	b.WriteString(`You are reviewing a legal knowledge base for duplicate entries.
For each numbered pair below, decide whether the EXISTING entry and the CANDIDATE entry describe the same legal concept (the same law, remedy, procedure, or evidence type), even if named or worded differently.

`)
	for i, p := range pairs {
		fmt.Fprintf(&b, "PAIR %d\nEXISTING: %s — %s\nCANDIDATE: %s — %s\n\n",
			i+1, p.ExistingName, p.ExistingDescription, p.CandidateName, p.CandidateDescription)
	}
	b.WriteString(`Answer with exactly one line per pair, in order, formatted as:
1: YES
2: NO
No other text.`)
	return b.String()
}

// parseVerdicts extracts one verdict per pair from the model response.
// Unmatched or malformed entries default to "no" (conservative: avoid
// incorrect merges more than avoid duplicates).
func parseVerdicts(text string, n int) []Verdict {
	verdicts := make([]Verdict, n)
	for i := range verdicts {
		verdicts[i] = VerdictNotMatched
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		num, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.ToUpper(line[:idx]), "PAIR")))
		if err != nil || num < 1 || num > n {
			continue
		}
		answer := strings.ToUpper(strings.TrimSpace(line[idx+1:]))
		if strings.HasPrefix(answer, "YES") {
			verdicts[num-1] = VerdictMatched
		} else if strings.HasPrefix(answer, "NO") {
			verdicts[num-1] = VerdictNotMatched
		}
	}
	return verdicts
}

// responseText flattens the text parts of a generation response
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String()
}

func unavailableVerdicts(n int) []Verdict {
	verdicts := make([]Verdict, n)
	for i := range verdicts {
		verdicts[i] = VerdictUnavailable
	}
	return verdicts
}

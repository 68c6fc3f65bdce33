package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Njoselson/tenant-legal-tools-sub000/models"

	"github.com/google/generative-ai-go/genai"
)

// GeminiExplainer renders a natural-language explanation of a verified
// proof chain. The prompt is restricted to the chain's own hops so the
// model cannot introduce legal claims the graph does not hold, and the
// output never feeds back into any score.
type GeminiExplainer struct {
	client *genai.Client
	model  string
}

// NewGeminiExplainer creates a new Gemini-backed explainer
func NewGeminiExplainer(client *genai.Client, model string) *GeminiExplainer {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiExplainer{client: client, model: model}
}

// ExplainChain describes how the chain's law and remedy apply to the issue,
// citing only the hops the chain contains
func (e *GeminiExplainer) ExplainChain(ctx context.Context, chain models.ProofChain) (string, error) {
	if e.client == nil {
		return "", errors.New("gemini client not set")
	}

	var hops strings.Builder
	for _, hop := range chain.Hops {
		fmt.Fprintf(&hops, "- %s -> %s", hop.Relation, hop.NodeName)
		if hop.Citation != "" {
			fmt.Fprintf(&hops, " (%s)", hop.Citation)
		}
		hops.WriteString("\n")
	}

	prompt := fmt.Sprintf(`You are explaining a tenant's legal options in plain language.

ISSUE: %s
APPLICABLE LAW: %s
AVAILABLE REMEDY: %s
VERIFIED GRAPH PATH:
%s
REQUIRED EVIDENCE: %s

Write 2-3 short paragraphs explaining how this law applies to the issue and what the remedy provides. Rules:
- Mention ONLY the law, remedy, and evidence listed above. Do not introduce any other statute, case, or legal claim.
- Do not state odds, percentages, or strength of the case.
- Cite the references shown in parentheses where available.
- Plain text, no markdown.`,
		chain.IssueName,
		chain.LawName,
		chain.RemedyName,
		hops.String(),
		strings.Join(chain.RequiredEvidence, ", "),
	)

	model := e.client.GenerativeModel(e.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("explanation generation failed: %w", err)
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", errors.New("empty explanation response")
	}
	return text, nil
}

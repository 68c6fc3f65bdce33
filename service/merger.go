package service

import (
	"github.com/Njoselson/tenant-legal-tools-sub000/models"
)

// MergeConcept folds an incoming duplicate's attributes into an existing
// node and returns the updated copy. Every field rule is monotone: the
// result is never worse than the existing node, and strictly better
// whenever the incoming data improves it. The input node is not mutated.
//
// Merge order matters for the attribute map (first writer wins per key) but
// re-merging an identical duplicate changes no governed field.
func MergeConcept(existing *models.ConceptNode, incoming models.ExtractedConcept) *models.ConceptNode {
	merged := *existing

	// Longer name/description is treated as more complete
	if len(incoming.Name) > len(merged.Name) {
		merged.Name = incoming.Name
	}
	if len(incoming.Description) > len(merged.Description) {
		merged.Description = incoming.Description
	}

	// Authority only moves up the binding ordering
	if incoming.Authority.Rank() > merged.Authority.Rank() {
		merged.Authority = incoming.Authority
	}

	if merged.Jurisdiction == "" {
		merged.Jurisdiction = incoming.Jurisdiction
	}

	// Attribute union: existing keys win over incoming keys of the same
	// name. Flagged as unresolved in the design notes; see DESIGN.md.
	if len(incoming.Attributes) > 0 {
		attrs := make(models.AttributeMap, len(merged.Attributes)+len(incoming.Attributes))
		for k, v := range merged.Attributes {
			attrs[k] = v
		}
		for k, v := range incoming.Attributes {
			if _, ok := attrs[k]; !ok {
				attrs[k] = v
			}
		}
		merged.Attributes = attrs
	}

	if incoming.Quote != nil {
		quotes := make(models.Quotes, len(merged.Quotes))
		copy(quotes, merged.Quotes)
		if !quotes.Contains(*incoming.Quote) {
			quotes = append(quotes, *incoming.Quote)
		}
		merged.Quotes = quotes

		// Longer quote is a proxy for a more substantive citation
		if merged.BestQuote == nil || len(incoming.Quote.Text) > len(merged.BestQuote.Text) {
			q := *incoming.Quote
			merged.BestQuote = &q
		}
	}

	sources := make(models.StringSet, len(merged.SourceIDs))
	copy(sources, merged.SourceIDs)
	merged.SourceIDs = sources.Add(incoming.SourceID)

	chunks := make(models.StringSet, len(merged.ChunkIDs))
	copy(chunks, merged.ChunkIDs)
	for _, chunkID := range incoming.ChunkIDs {
		chunks = chunks.Add(chunkID)
	}
	merged.ChunkIDs = chunks

	merged.MentionCount++

	return &merged
}

// NewConceptFromExtraction builds a fresh node from an extracted concept,
// keeping the resolver-minted identifier
func NewConceptFromExtraction(resolution Resolution, incoming models.ExtractedConcept) *models.ConceptNode {
	node := &models.ConceptNode{
		ID:           resolution.NodeID,
		Kind:         incoming.Kind,
		Name:         incoming.Name,
		Description:  incoming.Description,
		Authority:    incoming.Authority,
		Jurisdiction: incoming.Jurisdiction,
		Attributes:   incoming.Attributes,
		Quotes:       make(models.Quotes, 0),
		SourceIDs:    make(models.StringSet, 0),
		ChunkIDs:     make(models.StringSet, 0),
		MentionCount: 1,
	}
	if incoming.Quote != nil {
		q := *incoming.Quote
		node.BestQuote = &q
		node.Quotes = append(node.Quotes, q)
	}
	node.SourceIDs = node.SourceIDs.Add(incoming.SourceID)
	for _, chunkID := range incoming.ChunkIDs {
		node.ChunkIDs = node.ChunkIDs.Add(chunkID)
	}
	return node
}

package reranker

import (
	"context"
	"sort"
	"strings"
)

// lexicalProvider scores documents by term overlap with the query. It needs
// no backend and is the provider of last resort for air-gapped deployments.
type lexicalProvider struct{}

func (lexicalProvider) Rerank(ctx context.Context, query string, docs []string, topN int) ([]Result, error) {
	queryTokens := tokenize(query)

	results := make([]Result, len(docs))
	for i, doc := range docs {
		results[i] = Result{
			Index:          i,
			RelevanceScore: termOverlap(queryTokens, tokenize(doc)),
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

func (lexicalProvider) Name() string { return "lexical" }

func (lexicalProvider) Close() error { return nil }

// tokenize splits text into lowercase terms, dropping stopwords and tokens
// shorter than three characters.
func tokenize(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isAlphanumeric(r)
	})

	filtered := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if !isStopword(token) && len(token) > 2 {
			filtered = append(filtered, token)
		}
	}
	return filtered
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_'
}

func isStopword(token string) bool {
	stopwords := map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
		"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "by": true, "from": true, "as": true, "is": true, "was": true,
		"are": true, "be": true, "been": true, "being": true, "have": true, "has": true,
		"had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
		"could": true, "should": true, "may": true, "might": true, "can": true, "this": true,
		"that": true, "these": true, "those": true, "i": true, "you": true, "he": true,
		"she": true, "it": true, "we": true, "they": true, "what": true, "which": true,
		"who": true, "when": true, "where": true, "why": true, "how": true,
	}
	return stopwords[token]
}

// termOverlap returns the ratio of unique query terms found in the document,
// in [0, 1].
func termOverlap(queryTokens, docTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	docSet := make(map[string]bool, len(docTokens))
	for _, token := range docTokens {
		docSet[token] = true
	}

	matched := make(map[string]bool, len(queryTokens))
	for _, token := range queryTokens {
		if docSet[token] {
			matched[token] = true
		}
	}
	return float64(len(matched)) / float64(len(queryTokens))
}

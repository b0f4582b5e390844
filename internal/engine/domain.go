package engine

import (
	"strings"
	"unicode"

	"github.com/scrypster/recall/internal/config"
	"github.com/scrypster/recall/pkg/types"
)

// Domain is a coarse topic of a query.
type Domain string

// Query domains, in classification order.
const (
	DomainNone    Domain = ""
	DomainJobs    Domain = "jobs"
	DomainFamily  Domain = "family"
	DomainTravel  Domain = "travel"
	DomainHealth  Domain = "health"
	DomainFinance Domain = "finance"
	DomainProject Domain = "project"
)

var domainOrder = []Domain{DomainJobs, DomainFamily, DomainTravel, DomainHealth, DomainFinance, DomainProject}

var domainKeywords = map[Domain][]string{
	DomainJobs:    {"job", "career", "work", "manager", "promotion", "resume", "interview"},
	DomainFamily:  {"family", "kids", "parent", "child", "partner", "spouse"},
	DomainTravel:  {"trip", "travel", "flight", "airport", "vacation"},
	DomainHealth:  {"health", "exercise", "diet", "doctor", "sleep", "workout"},
	DomainFinance: {"budget", "money", "finance", "savings", "invest", "spend"},
	DomainProject: {"project", "roadmap", "build", "ship", "sprint", "release"},
}

// typeAdjust shifts the domain boost per memory type.
var typeAdjust = map[Domain]map[types.MemoryType]float64{
	DomainJobs: {
		types.MemoryTypeProject:    0.2,
		types.MemoryTypeIdentity:   0.1,
		types.MemoryTypePreference: -0.1,
	},
	DomainFamily: {
		types.MemoryTypeIdentity:   0.2,
		types.MemoryTypePreference: 0.1,
		types.MemoryTypeProject:    -0.15,
	},
	DomainTravel: {
		types.MemoryTypeEvent:      0.15,
		types.MemoryTypePreference: 0.05,
	},
	DomainHealth: {
		types.MemoryTypeIdentity:   0.1,
		types.MemoryTypePreference: 0.05,
	},
	DomainFinance: {
		types.MemoryTypeProject:  0.1,
		types.MemoryTypeIdentity: 0.05,
	},
}

// stopwords are dropped from query terms.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true, "were": true,
	"what": true, "when": true, "where": true, "who": true, "why": true, "how": true,
	"did": true, "does": true, "have": true, "has": true, "had": true, "with": true,
	"about": true, "that": true, "this": true, "from": true, "you": true, "your": true,
	"my": true, "me": true, "any": true, "can": true, "tell": true,
}

// ClassifyQueryDomain returns the first domain with a keyword among the
// words of text, or DomainNone. A trailing plural "s" is ignored.
func ClassifyQueryDomain(text string) Domain {
	words := tokenize(text)
	for _, d := range domainOrder {
		for _, kw := range domainKeywords[d] {
			for _, w := range words {
				if w == kw || strings.TrimSuffix(w, "s") == kw {
					return d
				}
			}
		}
	}
	return DomainNone
}

// QueryContext is the query-side input to reranking.
type QueryContext struct {
	Domain Domain
	Terms  []string
}

// NewQueryContext classifies text and extracts its content terms.
func NewQueryContext(text string) QueryContext {
	var terms []string
	seen := make(map[string]bool)
	for _, w := range tokenize(text) {
		if len(w) < 3 || stopwords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, w)
	}
	return QueryContext{Domain: ClassifyQueryDomain(text), Terms: terms}
}

// DomainBoost is zero unless one of the memory's topics, themes or tags
// shares a word with the query domain's keywords or the query terms.
func DomainBoost(m *types.Memory, q QueryContext, rc *config.RankingConfig) float64 {
	if q.Domain == DomainNone && len(q.Terms) == 0 {
		return 0
	}

	vocab := make(map[string]bool)
	for _, kw := range domainKeywords[q.Domain] {
		vocab[kw] = true
	}
	for _, t := range q.Terms {
		vocab[t] = true
	}

	if !labelsMatch(vocab, m.Topics, m.Themes, m.Tags) {
		return 0
	}
	return clamp01(rc.DomainMatchBase + typeAdjust[q.Domain][m.MemoryType])
}

func labelsMatch(vocab map[string]bool, lists ...[]string) bool {
	for _, list := range lists {
		for _, label := range list {
			for _, w := range tokenize(label) {
				if vocab[w] || vocab[strings.TrimSuffix(w, "s")] {
					return true
				}
			}
		}
	}
	return false
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

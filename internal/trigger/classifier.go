// Package trigger detects phrases that route the conversation into a screener or triage.
package trigger

import (
	"strings"

	"github.com/satriahrh/peacepal/server/domain/entities"
)

// Match is a classification hit
type Match struct {
	Mode    entities.SessionMode
	Priming string
}

type rule struct {
	mode  entities.SessionMode
	table Table
}

// Classifier matches text against keyword tables in fixed priority order
type Classifier struct {
	rules []rule
}

// NewClassifier builds a classifier. Crisis is evaluated first, then depression, then anxiety.
func NewClassifier(tables Tables) *Classifier {
	return &Classifier{
		rules: []rule{
			{mode: entities.SessionModeCSSRS, table: tables.Crisis},
			{mode: entities.SessionModePHQ9, table: tables.Depression},
			{mode: entities.SessionModeGAD7, table: tables.Anxiety},
		},
	}
}

// Classify returns the first matching sub-flow for text
func (c *Classifier) Classify(text string) (Match, bool) {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		for _, k := range r.table.Keywords {
			if strings.Contains(lower, k) {
				return Match{Mode: r.mode, Priming: r.table.Priming}, true
			}
		}
	}
	return Match{}, false
}

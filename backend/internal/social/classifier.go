package social

import (
	"fmt"
	"time"
)

// Relationship categories, ascending by weight threshold
const (
	CategoryStranger   = "stranger"
	CategoryAcquainted = "acquainted"
	CategoryFrequent   = "frequent"
	CategoryClose      = "close"
)

// Qualifiers attached to non-stranger categories
const (
	QualifierMutual         = "mutual"
	QualifierOneDirectional = "one-directional"
)

// Label is the categorical classification of an edge
type Label struct {
	Category  string `json:"category"`
	Qualifier string `json:"qualifier,omitempty"`
}

func (l Label) String() string {
	if l.Qualifier == "" {
		return l.Category
	}
	return fmt.Sprintf("%s (%s)", l.Category, l.Qualifier)
}

// Rule is one threshold predicate. The first rule whose predicate matches
// determines the category, so rules are ordered by descending MinWeight with a
// zero-threshold fallback last. MaxAge, when non-zero, additionally requires
// the edge to have been updated within that window.
type Rule struct {
	MinWeight float64
	MaxAge    time.Duration
	Category  string
}

func (r Rule) matches(stats EdgeStats) bool {
	if stats.Weight < r.MinWeight {
		return false
	}
	if r.MaxAge > 0 && stats.Age > r.MaxAge {
		return false
	}
	return true
}

// ClassifierConfig holds the ordered rule list and the symmetry threshold.
// Thresholds are data, not control flow, so deployments can re-tune them.
type ClassifierConfig struct {
	Rules []Rule
	// SymmetryThreshold is the min/max directional ratio at or above which a
	// relationship counts as mutual
	SymmetryThreshold float64
}

// DefaultClassifierConfig returns the stock rule ladder
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		Rules: []Rule{
			{MinWeight: 8, Category: CategoryClose},
			{MinWeight: 4, Category: CategoryFrequent},
			{MinWeight: 0.5, Category: CategoryAcquainted},
			{MinWeight: 0, Category: CategoryStranger},
		},
		SymmetryThreshold: 0.25,
	}
}

// Classifier maps edge statistics to labels. It is pure and stateless:
// identical statistics always produce the identical label.
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier creates a classifier over the given rule set
func NewClassifier(cfg ClassifierConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify evaluates the rule list top-down and attaches the symmetry
// qualifier unless the fallback (lowest) category matched.
func (c *Classifier) Classify(stats EdgeStats) Label {
	label := Label{}
	for i, rule := range c.cfg.Rules {
		if !rule.matches(stats) {
			continue
		}
		label.Category = rule.Category
		if i == len(c.cfg.Rules)-1 {
			// Fallback category: too faint to qualify a direction.
			return label
		}
		break
	}
	if label.Category == "" {
		label.Category = CategoryStranger
		return label
	}

	if stats.SymmetryRatio() >= c.cfg.SymmetryThreshold {
		label.Qualifier = QualifierMutual
	} else {
		label.Qualifier = QualifierOneDirectional
	}
	return label
}

package scraper

import (
	"strings"

	"info-collecte/internal/model"
)

// Rule maps a keyword found in a pictogram description to a category.
type Rule struct {
	Keyword  string         `mapstructure:"keyword" yaml:"keyword" validate:"required"`
	Category model.Category `mapstructure:"name" yaml:"name" validate:"required"`
	Label    string         `mapstructure:"label" yaml:"label"`
}

// DefaultRules recognizes the two categories shown on the Ville de Québec
// calendar. Pictogram alts look like "Ordures et résidus alimentaires" and
// "Recyclage".
var DefaultRules = []Rule{
	{Keyword: "ordures", Category: model.Waste, Label: "Collecte des ordures"},
	{Keyword: "recyclage", Category: model.Recycling, Label: "Collecte du recyclage"},
}

// Classifier assigns a category to a pictogram description using an ordered
// list of rules. The first matching rule wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier. An empty rule list falls back to
// DefaultRules.
func NewClassifier(rules []Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		r.Keyword = strings.ToLower(strings.TrimSpace(r.Keyword))
		if r.Keyword == "" || r.Category == "" {
			continue
		}
		normalized = append(normalized, r)
	}
	return &Classifier{rules: normalized}
}

// Classify returns the category whose keyword occurs in text, case-insensitively.
func (c *Classifier) Classify(text string) (model.Category, bool) {
	text = strings.ToLower(text)
	if text == "" {
		return "", false
	}
	for _, r := range c.rules {
		if strings.Contains(text, r.Keyword) {
			return r.Category, true
		}
	}
	return "", false
}

// Categories lists every category the classifier can produce, in rule order
// and without duplicates.
func (c *Classifier) Categories() []model.Category {
	seen := make(map[model.Category]bool)
	var out []model.Category
	for _, r := range c.rules {
		if seen[r.Category] {
			continue
		}
		seen[r.Category] = true
		out = append(out, r.Category)
	}
	return out
}

// Label returns the human readable title of a category, e.g. for calendar
// events.
func (c *Classifier) Label(cat model.Category) string {
	for _, r := range c.rules {
		if r.Category == cat && r.Label != "" {
			return r.Label
		}
	}
	return "Collecte " + string(cat)
}

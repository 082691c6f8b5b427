package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"info-collecte/internal/model"
)

func TestClassifier_Defaults(t *testing.T) {
	c := NewClassifier(nil)

	tests := []struct {
		alt  string
		want model.Category
		ok   bool
	}{
		{"Ordures et résidus alimentaires", model.Waste, true},
		{"ORDURES", model.Waste, true},
		{"Recyclage", model.Recycling, true},
		{"Collecte du recyclage", model.Recycling, true},
		{"Résidus verts", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := c.Classify(tt.alt)
		assert.Equal(t, tt.ok, ok, tt.alt)
		assert.Equal(t, tt.want, got, tt.alt)
	}
}

func TestClassifier_FirstRuleWins(t *testing.T) {
	c := NewClassifier([]Rule{
		{Keyword: "recyclage", Category: model.Recycling},
		{Keyword: "ordures", Category: model.Waste},
	})

	got, ok := c.Classify("ordures et recyclage")
	assert.True(t, ok)
	assert.Equal(t, model.Recycling, got)
}

func TestClassifier_IgnoresIncompleteRules(t *testing.T) {
	c := NewClassifier([]Rule{
		{Keyword: "  ", Category: "vide"},
		{Keyword: "verre", Category: ""},
		{Keyword: "Encombrants", Category: "encombrants", Label: "Encombrants"},
	})

	assert.Equal(t, []model.Category{"encombrants"}, c.Categories())
	got, ok := c.Classify("Collecte des encombrants")
	assert.True(t, ok)
	assert.Equal(t, model.Category("encombrants"), got)
}

func TestClassifier_CategoriesAndLabels(t *testing.T) {
	c := NewClassifier([]Rule{
		{Keyword: "ordures", Category: model.Waste, Label: "Ordures"},
		{Keyword: "déchets", Category: model.Waste},
		{Keyword: "recyclage", Category: model.Recycling},
	})

	assert.Equal(t, []model.Category{model.Waste, model.Recycling}, c.Categories())
	assert.Equal(t, "Ordures", c.Label(model.Waste))
	assert.Equal(t, "Collecte recyclage", c.Label(model.Recycling))
}

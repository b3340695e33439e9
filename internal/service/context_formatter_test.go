package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mfolio/internal/model"
)

func TestFormatContext_Empty(t *testing.T) {
	require.Equal(t, "", NewContextFormatter(0).FormatContext(nil))
	require.Equal(t, "", NewContextFormatter(0).FormatContext([]model.SearchResult{}))
}

func TestFormatContext_FactPercentage(t *testing.T) {
	out := NewContextFormatter(0).FormatContext([]model.SearchResult{{
		ContentID:   "f1",
		ContentType: model.ContentTypeFact,
		Similarity:  0.87,
		Item:        &model.Fact{ID: "f1", Title: "Skills", Content: "Go and SQL", Category: "tech"},
	}})
	require.NotEmpty(t, out)
	require.Contains(t, out, "87.0%")
	require.Equal(t, "## Relevant Facts\n\n### Skills (87.0% match)\nGo and SQL\nCategory: tech", out)
}

func TestFormatContext_SectionsAndProjectBody(t *testing.T) {
	project := &model.Project{
		ID:          "p1",
		Title:       "Portfolio",
		Summary:     "Personal site.",
		Features:    []string{"one", "two", "", "three", "four", "five", "six"},
		Tools:       []string{"go", "react"},
		ExternalURL: "https://example.com",
	}
	results := []model.SearchResult{
		{ContentType: model.ContentTypeProject, Similarity: 0.912, Item: project},
		{ContentType: model.ContentTypeFact, Similarity: 0.5, Item: &model.Fact{Title: "Bio", Content: "Engineer"}},
	}
	out := NewContextFormatter(5).FormatContext(results)

	factsAt := strings.Index(out, "## Relevant Facts")
	projectsAt := strings.Index(out, "## Relevant Projects")
	require.GreaterOrEqual(t, factsAt, 0)
	require.Greater(t, projectsAt, factsAt)
	require.Contains(t, out, "### Portfolio (91.2% match)\nPersonal site.\n- one\n- two\n- three\n- four\n- five\nTools: go, react\nLink: https://example.com")
	require.NotContains(t, out, "- six")
	require.Contains(t, out, "### Bio (50.0% match)")
}

func TestFormatContext_SkipsResultsWithoutItem(t *testing.T) {
	out := NewContextFormatter(0).FormatContext([]model.SearchResult{
		{ContentID: "gone", ContentType: model.ContentTypeProject, Similarity: 0.9},
		{ContentID: "f1", ContentType: model.ContentTypeFact, Similarity: 0.8, Item: &model.Fact{ID: "f1", Title: "Location", Content: "Based in Lisbon."}},
	})
	require.Contains(t, out, "## Relevant Facts")
	require.Contains(t, out, "Based in Lisbon.")
	require.NotContains(t, out, "## Relevant Projects")
}

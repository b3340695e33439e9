package service

import (
	"fmt"
	"strings"

	"github.com/xxxsen/mfolio/internal/model"
)

const DefaultMaxFeatures = 5

type ContextFormatter struct {
	maxFeatures int
}

func NewContextFormatter(maxFeatures int) *ContextFormatter {
	if maxFeatures <= 0 {
		maxFeatures = DefaultMaxFeatures
	}
	return &ContextFormatter{maxFeatures: maxFeatures}
}

// FormatContext renders search results as markdown for the prompt, facts
// before projects. Results keep their ranked order inside each section.
// Sections are picked from the loaded Item; results without one carry no
// text to render and are left out. Search never returns such results.
func (f *ContextFormatter) FormatContext(results []model.SearchResult) string {
	var facts, projects []string
	for _, r := range results {
		switch it := r.Item.(type) {
		case *model.Fact:
			facts = append(facts, f.formatFact(it, r.Similarity))
		case *model.Project:
			projects = append(projects, f.formatProject(it, r.Similarity))
		}
	}
	var sections []string
	if len(facts) > 0 {
		sections = append(sections, "## Relevant Facts\n\n"+strings.Join(facts, "\n\n"))
	}
	if len(projects) > 0 {
		sections = append(sections, "## Relevant Projects\n\n"+strings.Join(projects, "\n\n"))
	}
	return strings.Join(sections, "\n\n")
}

func (f *ContextFormatter) formatFact(fact *model.Fact, similarity float64) string {
	lines := []string{itemHeader(fact.Title, similarity)}
	if c := strings.TrimSpace(fact.Content); c != "" {
		lines = append(lines, c)
	}
	if c := strings.TrimSpace(fact.Category); c != "" {
		lines = append(lines, "Category: "+c)
	}
	return strings.Join(lines, "\n")
}

func (f *ContextFormatter) formatProject(p *model.Project, similarity float64) string {
	lines := []string{itemHeader(p.Title, similarity)}
	if s := strings.TrimSpace(p.Summary); s != "" {
		lines = append(lines, s)
	}
	features := 0
	for _, feat := range p.Features {
		if features >= f.maxFeatures {
			break
		}
		if feat = strings.TrimSpace(feat); feat == "" {
			continue
		}
		lines = append(lines, "- "+feat)
		features++
	}
	if tools := joinNonEmpty(p.Tools, ", "); tools != "" {
		lines = append(lines, "Tools: "+tools)
	}
	if u := strings.TrimSpace(p.ExternalURL); u != "" {
		lines = append(lines, "Link: "+u)
	}
	return strings.Join(lines, "\n")
}

func itemHeader(title string, similarity float64) string {
	return fmt.Sprintf("### %s (%.1f%% match)", strings.TrimSpace(title), similarity*100)
}

// Package advisor asks the generator for meeting preparation tasks and
// strategic advice and parses the answer into a fixed-size RecommendationSet.
package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"mailcal/internal/llm"
	"mailcal/internal/models"
)

// MaxTokens bounds the recommendation response.
const MaxTokens = 800

// Filler items pad a section the generator left short.
const (
	TaskFiller   = "Review meeting materials"
	AdviceFiller = "Stay focused on meeting objectives"
)

// Advisor produces recommendations for one meeting request.
type Advisor struct {
	gen    llm.Generator
	logger *slog.Logger
}

// New creates an Advisor.
func New(gen llm.Generator, logger *slog.Logger) *Advisor {
	return &Advisor{gen: gen, logger: logger}
}

// Recommend issues one generator call and parses the response. Only a
// gateway failure is returned as an error; a short or malformed answer is
// padded.
func (a *Advisor) Recommend(ctx context.Context, req models.MeetingRequest, person models.PersonContext) (models.RecommendationSet, error) {
	out, err := a.gen.Generate(ctx, buildPrompt(req, person), MaxTokens)
	if err != nil {
		return models.RecommendationSet{}, fmt.Errorf("generate recommendations: %w", err)
	}

	set := Parse(out)
	set.ProjectTitle = projectTitle(req, person)
	a.logger.Debug("Recommendations parsed", "tasks", len(set.Tasks), "advice", len(set.Advice))
	return set, nil
}

// Parse reads the TASKS and ADVICE sections of a response. Each section is
// cut to RecommendationsPerKind items and padded with its filler.
func Parse(response string) models.RecommendationSet {
	return models.RecommendationSet{
		Tasks:  pad(section(response, "TASKS"), TaskFiller),
		Advice: pad(section(response, "ADVICE"), AdviceFiller),
	}
}

// labelLine matches a line that opens a new section, such as "RULES:" or
// "**RULES:**".
var labelLine = regexp.MustCompile(`^\s*(?:\*\*|#+\s*)?[A-Za-z]+:`)

// bullet matches one leading list marker: "-", "•", "* ", "1." or "1)".
// A "*" needs trailing space so bold text keeps its "**".
var bullet = regexp.MustCompile(`^(?:[-•]\s*|\*\s+|\d+[.)]\s*)`)

// section returns the items under label, matched case-insensitively, up to
// the next label line or the end of text.
func section(text, label string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	prefix := strings.ToLower(label) + ":"

	start := -1
	var first string
	for i, line := range lines {
		trimmed := strings.TrimLeft(strings.TrimSpace(line), "*# ")
		if strings.HasPrefix(strings.ToLower(trimmed), prefix) {
			start = i + 1
			first = strings.TrimSpace(trimmed[len(prefix):])
			break
		}
	}
	if start < 0 {
		return nil
	}

	var items []string
	if item := cleanItem(first); item != "" {
		items = append(items, item)
	}
	for _, line := range lines[start:] {
		if labelLine.MatchString(line) {
			break
		}
		if item := cleanItem(line); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func cleanItem(line string) string {
	line = strings.TrimSpace(line)
	line = bullet.ReplaceAllString(line, "")
	if len(line) > 4 && strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**") {
		line = line[2 : len(line)-2]
	}
	return strings.TrimSpace(line)
}

func pad(items []string, filler string) []string {
	out := make([]string, 0, models.RecommendationsPerKind)
	for _, item := range items {
		if len(out) == models.RecommendationsPerKind {
			break
		}
		out = append(out, item)
	}
	for len(out) < models.RecommendationsPerKind {
		out = append(out, filler)
	}
	return out
}

// projectTitle prefers the title named in the email, then the directory's.
func projectTitle(req models.MeetingRequest, person models.PersonContext) string {
	if req.ProjectTitle != "" {
		return req.ProjectTitle
	}
	if !person.IsUnknown() {
		return person.ProjectTitle
	}
	return ""
}

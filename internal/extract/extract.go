// Package extract turns a free-text generator response into a MeetingRequest.
//
// The generator is asked for JSON but its answer is not trusted: prose may
// surround the object and any field may be missing, null or oddly typed.
// A response without a decodable object is a hard failure; individual
// missing fields fall back to their documented defaults.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mailcal/internal/llm"
	"mailcal/internal/models"
)

// MaxTokens bounds the extraction response.
const MaxTokens = 500

var (
	// ErrNoJSONObject means no {...} span could be located in the response.
	ErrNoJSONObject = errors.New("no JSON object in generator response")
	// ErrMalformedJSON means the located span did not decode as one object.
	ErrMalformedJSON = errors.New("malformed JSON in generator response")
)

// Extractor converts raw email text into a MeetingRequest via one
// generator call.
type Extractor struct {
	gen    llm.Generator
	logger *slog.Logger
}

// New creates an Extractor.
func New(gen llm.Generator, logger *slog.Logger) *Extractor {
	return &Extractor{gen: gen, logger: logger}
}

// Extract prompts the generator with the email and parses its answer.
func (e *Extractor) Extract(ctx context.Context, rawEmail string) (models.MeetingRequest, error) {
	out, err := e.gen.Generate(ctx, buildPrompt(rawEmail), MaxTokens)
	if err != nil {
		return models.MeetingRequest{}, fmt.Errorf("generate extraction: %w", err)
	}
	e.logger.Debug("Extraction response received", "length", len(out))

	req, err := Parse(out)
	if err != nil {
		e.logger.Warn("Extraction response rejected", "error", err, "response", truncate(out, 200))
		return models.MeetingRequest{}, err
	}
	return req, nil
}

// Parse cleans a generator response, slices out the JSON object and maps it
// onto a fully populated MeetingRequest.
func Parse(response string) (models.MeetingRequest, error) {
	obj, err := locateObject(Clean(response))
	if err != nil {
		return models.MeetingRequest{}, err
	}
	return fromObject(obj), nil
}

// locateObject slices from the first '{' to the last '}' and requires the
// span to be exactly one JSON object.
func locateObject(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 || end < start {
		return nil, ErrNoJSONObject
	}

	dec := json.NewDecoder(strings.NewReader(text[start : end+1]))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing content after object", ErrMalformedJSON)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: null object", ErrMalformedJSON)
	}
	return obj, nil
}

func fromObject(obj map[string]any) models.MeetingRequest {
	req := models.NewMeetingRequest()

	if v, ok := lookup(obj, "sender_role", "role"); ok {
		req.SenderRole = models.ParseSenderRole(asString(v))
	}
	if v, ok := lookup(obj, "project_title", "project"); ok {
		req.ProjectTitle = asString(v)
	}
	if v, ok := lookup(obj, "meeting_topic", "meeting topic", "topic"); ok {
		req.MeetingTopic = asString(v)
	}
	if v, ok := lookup(obj, "relation_type"); ok {
		req.RelationType = models.ParseRelationType(asString(v))
	}
	if v, ok := lookup(obj, "meeting_date", "date"); ok {
		req.MeetingDate = normalizeDate(asString(v))
	}
	if v, ok := lookup(obj, "meeting_time", "time"); ok {
		req.MeetingTime = normalizeTime(asString(v))
	}
	if v, ok := lookup(obj, "duration_hours", "duration"); ok {
		if h, ok := asHours(v); ok {
			req.DurationHours = h
		}
	}
	if v, ok := lookup(obj, "urgent"); ok {
		req.Urgent = truthy(v)
	}
	if v, ok := lookup(obj, "tasks_requested", "tasks"); ok {
		req.TasksRequested = asList(v)
	}
	if v, ok := lookup(obj, "documents_to_prepare", "documents"); ok {
		req.DocumentsToPrepare = asList(v)
	}
	if v, ok := lookup(obj, "confirmation_status"); ok {
		req.ConfirmationStatus = asConfirmation(v)
	}
	return req
}

// lookup returns the first key present with a non-null value. The literal
// strings "None", "null" and "N/A" count as null.
func lookup(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && isNullString(s) {
			continue
		}
		return v, true
	}
	return nil, false
}

func isNullString(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "null", "nil", "n/a", "na", "unknown":
		return true
	}
	return false
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func asList(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if item == nil {
				continue
			}
			if s := asString(item); !isNullString(s) {
				out = append(out, s)
			}
		}
	case string:
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1", "urgent", "oui", "high":
			return true
		}
		return false
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return false
	}
}

func asConfirmation(v any) models.ConfirmationStatus {
	switch t := v.(type) {
	case bool:
		if t {
			return models.ConfirmationConfirmed
		}
		return models.ConfirmationPending
	case string:
		return models.ParseConfirmationStatus(t)
	default:
		return models.ConfirmationUnknown
	}
}

var durationText = regexp.MustCompile(`(?i)^\s*(\d+(?:[.,]\d+)?)\s*(h|hr|hrs|hour|hours|heure|heures|m|min|mins|minute|minutes)?\b`)

// asHours reads a duration in hours from a number or text like "90 minutes",
// "1.5h" or "1h30m". Values outside what a slot can hold are rejected so
// the default applies.
func asHours(v any) (float64, bool) {
	var h float64
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		h = f
	case string:
		s := strings.TrimSpace(t)
		if d, err := time.ParseDuration(strings.ReplaceAll(strings.ToLower(s), " ", "")); err == nil {
			h = d.Hours()
			break
		}
		m := durationText.FindStringSubmatch(s)
		if m == nil {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err != nil {
			return 0, false
		}
		h = f
		if strings.HasPrefix(strings.ToLower(m[2]), "m") {
			h = f / 60
		}
	default:
		return 0, false
	}
	if !models.ValidDurationHours(h) {
		return 0, false
	}
	return h, true
}

// Day-first numeric dates: the mailbox owner's locale writes 20/12/2025.
var dateLayouts = []string{
	models.DateLayout,
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"January 2, 2006",
	"January 2 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"Monday, January 2, 2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format(models.DateLayout)
		}
	}
	return ""
}

var timeLayouts = []string{
	models.TimeLayout,
	"15:04:05",
	"3:04PM",
	"3:04 PM",
	"3PM",
	"3 PM",
	"15h04",
	"15h",
	"15.04",
}

func normalizeTime(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.NewReplacer("A.M.", "AM", "P.M.", "PM").Replace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(strings.ToUpper(layout), s); err == nil {
			return t.Format(models.TimeLayout)
		}
	}
	return ""
}

// truncate cuts s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

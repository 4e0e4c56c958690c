package storygen

import (
	"errors"
	"strings"
)

// DefaultTitle is used when the response carried a usable body but no
// parsable TITLE: section.
const DefaultTitle = "Untitled Romance"

// minSalvageWords is the smallest unformatted response accepted as a raw
// story body. Anything shorter with no markers is a hard parse failure.
const minSalvageWords = 150

var ErrUnparsable = errors.New("response has no story sections and is too short to salvage")

// Salvage tiers, from a fully formatted response down to bare prose.
const (
	SalvageStrict  = "strict"
	SalvagePartial = "partial"
	SalvageRaw     = "raw"
)

// Parsed holds the structured fields extracted from a generation response.
type Parsed struct {
	Title   string
	Author  string
	Summary string
	Tags    []string
	Body    string

	// Salvage records which tier produced the result.
	Salvage string
}

var sectionMarkers = []string{"TITLE:", "AUTHOR:", "SUMMARY:", "TAGS:", "STORY:"}

// Parse extracts story fields from the text service's response using the
// fixed section-marker contract. The provider's formatting drifts, so parsing
// degrades through three tiers instead of hard-failing:
//
//  1. every marker present: fields extracted as written;
//  2. partial: whatever markers did parse are used, missing metadata gets
//     defaults, the body falls back to everything after the last marker;
//  3. no markers at all: a response of substantial length is accepted
//     outright as the body under DefaultTitle.
//
// Only a response with no markers and too little prose is rejected.
func Parse(raw string) (Parsed, error) {
	raw = strings.TrimSpace(raw)

	p := Parsed{
		Title:  extractSection(raw, "TITLE:"),
		Author: extractSection(raw, "AUTHOR:"),
		Body:   extractBody(raw),
	}
	p.Summary = extractSection(raw, "SUMMARY:")
	if tags := extractSection(raw, "TAGS:"); tags != "" {
		p.Tags = splitTags(tags)
	}

	p.Salvage = SalvageStrict
	for _, m := range sectionMarkers {
		if !strings.Contains(raw, m) {
			p.Salvage = SalvagePartial
			break
		}
	}

	if p.Body == "" && !hasAnyMarker(raw) {
		// Tier 3: unformatted response, accept as body if it is substantial.
		if countWords(raw) >= minSalvageWords {
			p.Body = raw
			p.Salvage = SalvageRaw
		}
	}

	if p.Body == "" {
		return Parsed{}, ErrUnparsable
	}
	if p.Title == "" {
		p.Title = DefaultTitle
	}
	return p, nil
}

// extractSection returns the single-line value after a marker, or "".
func extractSection(raw, marker string) string {
	idx := strings.Index(raw, marker)
	if idx < 0 {
		return ""
	}
	rest := raw[idx+len(marker):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	return strings.TrimSpace(rest)
}

// extractBody returns everything after STORY:, or, when STORY: is absent but
// other markers exist, everything after the last marker line.
func extractBody(raw string) string {
	if idx := strings.Index(raw, "STORY:"); idx >= 0 {
		return strings.TrimSpace(raw[idx+len("STORY:"):])
	}
	// Partial salvage: find the end of the last metadata marker line and
	// treat the remainder as prose.
	last := -1
	for _, m := range sectionMarkers {
		if idx := strings.Index(raw, m); idx > last {
			last = idx
		}
	}
	if last < 0 {
		return ""
	}
	rest := raw[last:]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return ""
	}
	body := strings.TrimSpace(rest[nl+1:])
	if countWords(body) < minSalvageWords {
		return ""
	}
	return body
}

func hasAnyMarker(raw string) bool {
	for _, m := range sectionMarkers {
		if strings.Contains(raw, m) {
			return true
		}
	}
	return false
}

func splitTags(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// CountWords reports whitespace-separated word count; used for the derived
// word-count field and reading time.
func CountWords(s string) int { return countWords(s) }

func countWords(s string) int { return len(strings.Fields(s)) }

package transform

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DelayExtractor pulls a server-suggested retry delay out of an error
// payload. Extractors run in order; the first hit wins. New upstream error
// shapes get a new extractor, not a change to the retry loop.
type DelayExtractor interface {
	Name() string
	Extract(message string, payload map[string]interface{}) (time.Duration, bool)
}

// FieldDelayExtractor looks up known field names in the decoded payload.
// Values may be numbers (seconds) or strings like "39s" or "14".
type FieldDelayExtractor struct {
	Fields []string
}

func (FieldDelayExtractor) Name() string { return "field" }

func (f FieldDelayExtractor) Extract(_ string, payload map[string]interface{}) (time.Duration, bool) {
	for _, field := range f.Fields {
		v, ok := lookup(payload, field)
		if !ok {
			continue
		}
		if d, ok := asSeconds(v); ok {
			return d, true
		}
	}
	return 0, false
}

// lookup searches the payload for the field at the top level and one level
// down, since upstreams nest error details inconsistently.
func lookup(payload map[string]interface{}, field string) (interface{}, bool) {
	if v, ok := payload[field]; ok {
		return v, true
	}
	for _, v := range payload {
		if nested, ok := v.(map[string]interface{}); ok {
			if inner, ok := nested[field]; ok {
				return inner, true
			}
		}
	}
	return nil, false
}

func asSeconds(v interface{}) (time.Duration, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 {
			return 0, false
		}
		return time.Duration(t * float64(time.Second)), true
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(t), "s")
		secs, err := strconv.ParseFloat(s, 64)
		if err != nil || secs < 0 {
			return 0, false
		}
		return time.Duration(secs * float64(time.Second)), true
	}
	return 0, false
}

// MessageDelayExtractor matches phrases like "retry in 14s" or
// "try again in 30 seconds" inside a human-readable error message.
type MessageDelayExtractor struct{}

var retryInPattern = regexp.MustCompile(`(?i)(?:retry|try again)\s+in\s+(\d+(?:\.\d+)?)\s*s`)

func (MessageDelayExtractor) Name() string { return "message" }

func (MessageDelayExtractor) Extract(message string, _ map[string]interface{}) (time.Duration, bool) {
	m := retryInPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	secs, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(secs * float64(time.Second)), true
}

// DefaultExtractors returns the extraction rules in priority order: named
// field lookup first, then the message regex fallback.
func DefaultExtractors() []DelayExtractor {
	return []DelayExtractor{
		FieldDelayExtractor{Fields: []string{"retryDelay", "retry_delay", "retryAfter", "retry_after"}},
		MessageDelayExtractor{},
	}
}

// rateLimitVocabulary flags error messages that talk about rate limiting
// without naming a concrete delay.
var rateLimitVocabulary = []string{
	"rate limit",
	"rate-limit",
	"too many requests",
	"quota",
	"resource_exhausted",
	"resource exhausted",
	"overloaded",
}

func mentionsRateLimit(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range rateLimitVocabulary {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

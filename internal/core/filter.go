package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/medialistener/internal/model"
)

// FilterOp represents a comparison operator.
type FilterOp string

const (
	FilterOpEqual     FilterOp = "="  // Exact match
	FilterOpNotEqual  FilterOp = "!=" // Not equal
	FilterOpContains  FilterOp = "~"  // Contains substring
	FilterOpRegex     FilterOp = "~=" // Regex match
	FilterOpGreater   FilterOp = ">"  // Greater than
	FilterOpLess      FilterOp = "<"  // Less than
	FilterOpGreaterEq FilterOp = ">=" // Greater than or equal
	FilterOpLessEq    FilterOp = "<=" // Less than or equal
)

// fieldKind is the value type a filter field compares as.
type fieldKind int

const (
	fieldString fieldKind = iota
	fieldInt
	fieldBool
)

// filterFields maps accepted field names and aliases to a canonical name.
var filterFields = map[string]string{
	"type":         "type",
	"event_type":   "type",
	"kind":         "type",
	"app":          "app",
	"app_name":     "app",
	"title":        "title",
	"artist":       "artist",
	"album":        "album",
	"playing":      "playing",
	"is_playing":   "playing",
	"position":     "position",
	"position_ms":  "position",
	"duration":     "duration",
	"duration_ms":  "duration",
	"seq":          "seq",
	"event_number": "seq",
}

var fieldKinds = map[string]fieldKind{
	"type":     fieldString,
	"app":      fieldString,
	"title":    fieldString,
	"artist":   fieldString,
	"album":    fieldString,
	"playing":  fieldBool,
	"position": fieldInt,
	"duration": fieldInt,
	"seq":      fieldInt,
}

// kindAliases lets "type=track" stand for "type=track_changed".
var kindAliases = map[string]model.EventKind{
	"track":    model.KindTrackChanged,
	"state":    model.KindPlaybackStateChanged,
	"position": model.KindPositionChanged,
	"app":      model.KindApplicationChanged,
}

// FilterCondition represents a single filter condition.
type FilterCondition struct {
	Field    string   // Canonical field name: type, app, title, artist, album, playing, position, duration, seq
	Operator FilterOp // Comparison operator
	Value    string   // Value to compare against

	// Cached parsed values
	regex   *regexp.Regexp // Compiled regex for ~= operator
	intVal  int64          // Milliseconds for position/duration, number for seq
	boolVal bool
}

// FilterExpr represents a compound filter expression.
// Multiple conditions are ANDed together.
type FilterExpr struct {
	Conditions []FilterCondition
}

// ParseFilter parses a filter expression string into a FilterExpr.
// Format: "field=value,field2~value2,field3>value3"
// Multiple conditions are comma-separated and ANDed together.
//
// Supported fields: type, app, title, artist, album, playing, position, duration, seq
// Supported operators: = (equal), != (not equal), ~ (contains), ~= (regex), >, <, >=, <=
//
// Examples:
//   - "type=track" - only track changes
//   - "app=spotify,playing=true" - Spotify resuming playback
//   - "artist~=(?i)^the " - artists starting with "the"
//   - "position>=1m30s" - positions past ninety seconds
func ParseFilter(expr string) (*FilterExpr, error) {
	filter := &FilterExpr{
		Conditions: make([]FilterCondition, 0),
	}

	for part := range strings.SplitSeq(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		cond, err := parseCondition(part)
		if err != nil {
			return nil, err
		}
		filter.Conditions = append(filter.Conditions, cond)
	}

	return filter, nil
}

// parseCondition parses a single condition like "app=spotify" or "title~live".
func parseCondition(s string) (FilterCondition, error) {
	// Longest operators first so "!=" is not read as "=".
	operators := []FilterOp{
		FilterOpNotEqual,
		FilterOpGreaterEq,
		FilterOpLessEq,
		FilterOpRegex,
		FilterOpEqual,
		FilterOpContains,
		FilterOpGreater,
		FilterOpLess,
	}

	for _, op := range operators {
		idx := strings.Index(s, string(op))
		if idx > 0 {
			cond := FilterCondition{
				Field:    strings.ToLower(strings.TrimSpace(s[:idx])),
				Operator: op,
				Value:    strings.TrimSpace(s[idx+len(op):]),
			}
			if err := cond.init(); err != nil {
				return FilterCondition{}, err
			}
			return cond, nil
		}
	}

	return FilterCondition{}, fmt.Errorf("invalid filter condition: %s (missing operator)", s)
}

// init normalizes the field and pre-parses the value.
func (c *FilterCondition) init() error {
	field, ok := filterFields[c.Field]
	if !ok {
		return fmt.Errorf("unknown filter field: %s", c.Field)
	}
	c.Field = field

	switch fieldKinds[field] {
	case fieldString:
		if c.Operator != FilterOpEqual && c.Operator != FilterOpNotEqual &&
			c.Operator != FilterOpContains && c.Operator != FilterOpRegex {
			return fmt.Errorf("operator %s not supported for %s", c.Operator, field)
		}
		if field == "type" && (c.Operator == FilterOpEqual || c.Operator == FilterOpNotEqual) {
			kind, err := ParseEventKind(c.Value)
			if err != nil {
				return err
			}
			c.Value = string(kind)
		}
	case fieldBool:
		if c.Operator != FilterOpEqual && c.Operator != FilterOpNotEqual {
			return fmt.Errorf("operator %s not supported for %s", c.Operator, field)
		}
		b, err := strconv.ParseBool(strings.ToLower(c.Value))
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %s", field, c.Value)
		}
		c.boolVal = b
	case fieldInt:
		if c.Operator == FilterOpContains || c.Operator == FilterOpRegex {
			return fmt.Errorf("operator %s not supported for %s", c.Operator, field)
		}
		var (
			v   int64
			err error
		)
		if field == "seq" {
			v, err = strconv.ParseInt(c.Value, 10, 64)
		} else {
			v, err = ParseMillis(c.Value)
		}
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", field, err)
		}
		c.intVal = v
	}

	if c.Operator == FilterOpRegex {
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return fmt.Errorf("invalid regex: %w", err)
		}
		c.regex = re
	}

	return nil
}

// ParseEventKind accepts a full event type or its short alias.
func ParseEventKind(s string) (model.EventKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if kind, ok := kindAliases[s]; ok {
		return kind, nil
	}
	for _, kind := range model.ValidKinds() {
		if string(kind) == s {
			return kind, nil
		}
	}
	return "", fmt.Errorf("invalid event type: %s (use track, state, position, app or a full event type)", s)
}

// ParseMillis parses a position or duration as a Go duration ("1m30s")
// or a bare number of milliseconds.
func ParseMillis(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %s", s)
	}
	return d.Milliseconds(), nil
}

// Match tests if a record matches the filter expression.
// All conditions must match (AND logic). An empty expression matches everything.
func (f *FilterExpr) Match(rec model.Record) bool {
	if f == nil {
		return true
	}
	for _, cond := range f.Conditions {
		if !cond.Match(rec) {
			return false
		}
	}
	return true
}

// Match tests if a record matches this single condition. Numeric and
// boolean fields the record does not carry never match.
func (c *FilterCondition) Match(rec model.Record) bool {
	switch c.Field {
	case "type":
		return c.matchString(string(rec.EventType))
	case "app":
		return c.matchString(rec.AppName)
	case "title", "artist", "album":
		var v string
		if t := rec.TrackInfo; t != nil {
			switch c.Field {
			case "title":
				v = t.Title
			case "artist":
				v = t.Artist
			case "album":
				v = t.Album
			}
		}
		return c.matchString(v)
	case "playing":
		if rec.IsPlaying == nil {
			return false
		}
		return c.matchBool(*rec.IsPlaying)
	case "position":
		if rec.PositionMs == nil {
			return false
		}
		return c.matchInt(*rec.PositionMs)
	case "duration":
		if rec.TrackInfo == nil || rec.TrackInfo.DurationMs == nil {
			return false
		}
		return c.matchInt(*rec.TrackInfo.DurationMs)
	case "seq":
		return c.matchInt(int64(rec.EventNumber))
	default:
		return false
	}
}

// matchString matches a string field.
func (c *FilterCondition) matchString(fieldValue string) bool {
	switch c.Operator {
	case FilterOpEqual:
		return fieldValue == c.Value
	case FilterOpNotEqual:
		return fieldValue != c.Value
	case FilterOpContains:
		return strings.Contains(strings.ToLower(fieldValue), strings.ToLower(c.Value))
	case FilterOpRegex:
		return c.regex != nil && c.regex.MatchString(fieldValue)
	default:
		return false
	}
}

// matchInt matches an integer field with numeric comparison.
func (c *FilterCondition) matchInt(fieldValue int64) bool {
	switch c.Operator {
	case FilterOpEqual:
		return fieldValue == c.intVal
	case FilterOpNotEqual:
		return fieldValue != c.intVal
	case FilterOpGreater:
		return fieldValue > c.intVal
	case FilterOpLess:
		return fieldValue < c.intVal
	case FilterOpGreaterEq:
		return fieldValue >= c.intVal
	case FilterOpLessEq:
		return fieldValue <= c.intVal
	default:
		return false
	}
}

// matchBool matches a boolean field.
func (c *FilterCondition) matchBool(fieldValue bool) bool {
	switch c.Operator {
	case FilterOpEqual:
		return fieldValue == c.boolVal
	case FilterOpNotEqual:
		return fieldValue != c.boolVal
	default:
		return false
	}
}

package directive

import (
	"bufio"
	"fmt"
	"strings"
	"time"
	"unicode"

	"cloud.google.com/go/civil"
)

type field int

const (
	fieldAction field = iota
	fieldTask
	fieldDueDate
	fieldDueTime
	fieldNote
)

// fieldRules maps each field to the label that introduces it. Labels match case-insensitively.
var fieldRules = []struct {
	field field
	label string
}{
	{fieldAction, "action:"},
	{fieldTask, "task:"},
	{fieldDueDate, "due date:"},
	{fieldDueTime, "time:"},
	{fieldNote, "note:"},
}

// Resolve extracts a directive from a model reply.
//
// It returns ErrNoAction when the reply has no action line; in that case nothing else is
// extracted. A malformed due date fails an add directive with ErrInvalidDueDate and is dropped
// with a warning for every other action. A malformed time is always dropped with a warning.
func Resolve(text string) (Result, error) {
	raw := extractFields(text)

	action, ok := raw[fieldAction]
	if !ok {
		return Result{}, ErrNoAction
	}
	var res Result
	res.Directive.Action = Action(strings.ToLower(action))
	if !res.Directive.Action.Valid() {
		return Result{}, &FieldError{Field: "action", Value: action, Err: ErrUnknownAction}
	}

	if v, ok := raw[fieldTask]; ok {
		res.Directive.Task = &v
	}
	if v, ok := raw[fieldNote]; ok {
		res.Directive.Note = &v
	}
	if v, ok := raw[fieldDueDate]; ok {
		d, err := ParseDate(v)
		switch {
		case err == nil:
			res.Directive.DueDate = &d
		case res.Directive.Action == ActionAdd:
			return Result{}, &FieldError{Field: "due date", Value: v, Err: ErrInvalidDueDate}
		default:
			res.Warnings = append(res.Warnings, fmt.Sprintf("ignoring malformed due date %q", v))
		}
	}
	if v, ok := raw[fieldDueTime]; ok {
		t, err := ParseClock(v)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("ignoring malformed time %q", v))
		} else {
			res.Directive.DueTime = &t
		}
	}
	return res, nil
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (civil.Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return civil.Date{}, err
	}
	return civil.DateOf(t), nil
}

// ParseClock parses a 24-hour HH:MM time of day.
func ParseClock(s string) (civil.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return civil.Time{}, err
	}
	return civil.Time{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// extractFields returns the first present, non-null value for every labelled field.
func extractFields(text string) map[field]string {
	out := make(map[field]string, len(fieldRules))
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		line := stripDecoration(sc.Text())
		for _, rule := range fieldRules {
			if !hasLabel(line, rule.label) {
				continue
			}
			if _, seen := out[rule.field]; seen {
				break
			}
			if v, ok := cleanValue(line[len(rule.label):]); ok {
				out[rule.field] = v
			} else {
				// An explicit null still counts as the first match for its label.
				out[rule.field] = ""
			}
			break
		}
	}
	for k, v := range out {
		if v == "" {
			delete(out, k)
		}
	}
	return out
}

func hasLabel(line, label string) bool {
	return len(line) >= len(label) && strings.EqualFold(line[:len(label)], label)
}

// stripDecoration drops emoji, bullets and markdown markers that precede a label.
func stripDecoration(line string) string {
	return strings.TrimLeftFunc(line, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

// cleanValue trims a raw value and reports false when it is empty or the literal null.
func cleanValue(v string) (string, bool) {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "*`")
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "null") {
		return "", false
	}
	return v, true
}

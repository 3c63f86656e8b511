package receiver

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/codefionn/huddle/internal/protocol"
)

// Field error messages shared by schemas.
const (
	MsgRequired   = "This field is required."
	MsgBlank      = "This field may not be blank."
	MsgNotString  = "Not a valid string."
	MsgNotInteger = "A valid integer is required."
	MsgDatetime   = "Datetime has wrong format. Use one of these formats instead: YYYY-MM-DDThh:mm[:ss[.uuuuuu]][+HH:MM|-HH:MM|Z]."
)

// FieldErrors collects messages per field.
type FieldErrors map[string][]string

// Add appends msg to the messages of field.
func (fe *FieldErrors) Add(field, msg string) {
	if *fe == nil {
		*fe = make(FieldErrors)
	}
	(*fe)[field] = append((*fe)[field], msg)
}

// Empty reports whether no messages were collected.
func (fe FieldErrors) Empty() bool { return len(fe) == 0 }

// Err converts the collected messages into a validation error, or nil.
func (fe FieldErrors) Err() error {
	if fe.Empty() {
		return nil
	}
	return protocol.ValidationError(map[string][]string(fe))
}

// ParseID extracts the required "id" field.
func ParseID(fields Fields) (int64, error) {
	raw, ok := fields["id"]
	if !ok || raw == nil {
		return 0, protocol.ValidationError(map[string][]string{"id": {MsgRequired}})
	}
	id, ok := Int(raw)
	if !ok || id <= 0 {
		return 0, protocol.ValidationError(map[string][]string{"id": {MsgNotInteger}})
	}
	return id, nil
}

// Int converts a decoded JSON value to an integer. Integral numbers and
// decimal strings are accepted.
func Int(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// String validates a required-or-optional string field. present reports
// whether the field was supplied; a non-empty msg describes the violation.
func String(fields Fields, key string, maxLen int) (value string, present bool, msg string) {
	raw, ok := fields[key]
	if !ok {
		return "", false, ""
	}
	if raw == nil {
		return "", true, "This field may not be null."
	}
	s, ok := raw.(string)
	if !ok {
		return "", true, MsgNotString
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", true, MsgBlank
	}
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		return "", true, fmt.Sprintf("Ensure this field has no more than %d characters.", maxLen)
	}
	return s, true, ""
}

// Time parses an optional nullable timestamp field. A nil result with
// present set means the client sent null.
func Time(fields Fields, key string) (value *time.Time, present bool, msg string) {
	raw, ok := fields[key]
	if !ok {
		return nil, false, ""
	}
	if raw == nil {
		return nil, true, ""
	}
	s, ok := raw.(string)
	if !ok {
		return nil, true, MsgDatetime
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04"} {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			t = t.UTC()
			return &t, true, ""
		}
	}
	return nil, true, MsgDatetime
}

// FormatTime renders t the way the wire carries timestamps, or nil.
func FormatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

package timetable

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Record is one raw upstream lesson (or entity) object as decoded from JSON.
type Record = map[string]any

// firstString returns the first non-empty string among keys. Numbers are
// formatted, maps and lists are skipped.
func firstString(r Record, keys ...string) string {
	for _, k := range keys {
		if s := scalarString(r[k]); s != "" {
			return s
		}
	}
	return ""
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return ""
	}
}

// firstInt returns the first key holding a positive integer (number or numeric string).
func firstInt(r Record, keys ...string) int {
	for _, k := range keys {
		if n := intOf(r[k]); n > 0 {
			return n
		}
	}
	return 0
}

func intOf(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case int:
		return x
	case int64:
		return int(x)
	case json.Number:
		n, _ := x.Int64()
		return int(n)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case json.Number:
		return x.String() != "0"
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "yes", "y", "да", "online", "онлайн":
			return true
		}
	}
	return false
}

func anyTruthy(r Record, keys ...string) bool {
	for _, k := range keys {
		if truthy(r[k]) {
			return true
		}
	}
	return false
}

// EntityID and EntityName probe the id/name of a search result object.
func EntityID(r Record) string {
	return firstString(r, "id", "group_id", "gid", "lecturer_oid", "person_id", "oid", "uuid", "_id")
}

func EntityName(r Record) string {
	return firstString(r, "label", "name", "title", "fullName", "full_name", "group", "group_name", "fullname", "display")
}

package timetable

import "sort"

// Payload is an upstream timetable response: either a flat list of records or
// records grouped under date keys.
type Payload struct {
	Records []Record
	ByDate  map[string][]Record
}

var wrapperKeys = []string{"data", "lessons", "items", "schedule", "result"}

// PayloadFrom accepts a decoded JSON document. Date-keyed objects are grouped by
// their normalized key, non-date keys are ignored; a wrapper object holding the
// list under a well-known key is unwrapped.
func PayloadFrom(v any) Payload {
	switch x := v.(type) {
	case []any:
		return Payload{Records: records(x)}
	case map[string]any:
		by := map[string][]Record{}
		for k, vv := range x {
			dk := NormalizeDateKey(k)
			if dk == "" {
				continue
			}
			if list, ok := vv.([]any); ok {
				by[dk] = append(by[dk], records(list)...)
			}
		}
		if len(by) > 0 {
			return Payload{ByDate: by}
		}
		for _, k := range wrapperKeys {
			if inner, ok := x[k]; ok {
				return PayloadFrom(inner)
			}
		}
	}
	return Payload{}
}

func records(list []any) []Record {
	out := make([]Record, 0, len(list))
	for _, it := range list {
		if r, ok := it.(map[string]any); ok {
			out = append(out, r)
		}
	}
	return out
}

// Lessons normalizes and groups the payload by date key. Records without a
// recognizable date go to fallbackDate, or are dropped when it is empty.
// skipped counts records that were dropped.
func (p Payload) Lessons(kind EntityKind, fallbackDate string) (map[string][]Lesson, int) {
	out := map[string][]Lesson{}
	skipped := 0
	add := func(dk string, r Record) {
		l, err := Normalize(kind, r)
		if err != nil {
			skipped++
			return
		}
		if l.Date == "" || dk != "" {
			if dk == "" {
				dk = fallbackDate
			}
			l.Date = dk
		}
		if l.Date == "" {
			skipped++
			return
		}
		out[l.Date] = append(out[l.Date], l)
	}

	keys := make([]string, 0, len(p.ByDate))
	for k := range p.ByDate {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		dk := NormalizeDateKey(k)
		if dk == "" {
			skipped += len(p.ByDate[k])
			continue
		}
		for _, r := range p.ByDate[k] {
			add(dk, r)
		}
	}
	for _, r := range p.Records {
		add("", r)
	}
	return out, skipped
}

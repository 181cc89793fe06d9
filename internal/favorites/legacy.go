package favorites

import (
	"bytes"
	"encoding/json"
)

// rawEntry accepts every shape the favorites file has had.
type rawEntry struct {
	Groups      []Item          `json:"groups"`
	Instructors []Item          `json:"instructors"`
	Teachers    []Item          `json:"teachers"`
	Group       json.RawMessage `json:"group"`
	GroupID     json.RawMessage `json:"group_id"`
	GroupName   string          `json:"group_name"`
	DeliveryDay string          `json:"delivery_day"`
	Day         string          `json:"day"`
	NotifyTimes json.RawMessage `json:"notify_times"`
	Notify      json.RawMessage `json:"notify"`

	DefaultsApplied bool            `json:"defaults_applied"`
	PrefsUpdatedAt  json.RawMessage `json:"prefs_updated_at"`
}

// decodeEntry returns the current shape of b. legacy reports that b used an
// older shape and should be rewritten. Undecodable input yields an empty entry.
func decodeEntry(b json.RawMessage, defaultTime string) (e Entry, legacy bool, err error) {
	var r rawEntry
	if err := json.Unmarshal(b, &r); err != nil {
		return Entry{Groups: []Item{}, Instructors: []Item{}, NotifyTimes: []string{}}, false, err
	}

	e.Groups = r.Groups
	e.Instructors = r.Instructors
	if len(r.Teachers) > 0 {
		e.Instructors = append(e.Instructors, r.Teachers...)
		legacy = true
	}
	if g, ok := legacyGroup(r); ok {
		e.Groups = append([]Item{g}, e.Groups...)
		legacy = true
	} else if len(r.Group) > 0 || len(r.GroupID) > 0 {
		legacy = true
	}
	e.Groups = uniqueItems(e.Groups)
	e.Instructors = uniqueItems(e.Instructors)

	e.DeliveryDay = DeliveryDay(r.DeliveryDay)
	if e.DeliveryDay == "" && r.Day != "" {
		e.DeliveryDay = DeliveryDay(r.Day)
		legacy = true
	}
	if d, err := ParseDeliveryDay(string(e.DeliveryDay)); err == nil {
		e.DeliveryDay = d
	} else {
		e.DeliveryDay = ""
	}

	times, boolShape := decodeTimes(r.NotifyTimes)
	if boolShape {
		legacy = true
	}
	if len(r.Notify) > 0 {
		// bare "notify": true|false from the first releases
		if t, isBool := decodeTimes(r.Notify); isBool {
			times = append(times, t...)
			legacy = true
		}
	}
	if boolShape || len(r.Notify) > 0 {
		for i, t := range times {
			if t == boolOn {
				times[i] = defaultTime
			}
		}
	}
	e.NotifyTimes = normalizeTimes(times)

	e.DefaultsApplied = r.DefaultsApplied
	if legacy && !e.Inert() && !e.DefaultsApplied {
		// an old entry that never stored a notify preference gets the
		// first-favorite default; an explicit false or [] stays off
		if absent(r.NotifyTimes) && absent(r.Notify) && len(e.NotifyTimes) == 0 {
			e.NotifyTimes = []string{defaultTime}
		}
		e.DefaultsApplied = true
	}
	if len(r.PrefsUpdatedAt) > 0 {
		_ = json.Unmarshal(r.PrefsUpdatedAt, &e.PrefsUpdatedAt)
	}
	return e, legacy, nil
}

const boolOn = "\x00on"

func absent(b json.RawMessage) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || string(b) == "null"
}

// decodeTimes reads either a list of clock strings or a bare boolean; true
// becomes the boolOn placeholder.
func decodeTimes(b json.RawMessage) ([]string, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil, false
	}
	var on bool
	if err := json.Unmarshal(b, &on); err == nil {
		if on {
			return []string{boolOn}, true
		}
		return nil, true
	}
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		return list, false
	}
	var one string
	if err := json.Unmarshal(b, &one); err == nil && one != "" {
		return []string{one}, false
	}
	return nil, false
}

func legacyGroup(r rawEntry) (Item, bool) {
	if len(r.Group) > 0 && string(bytes.TrimSpace(r.Group)) != "null" {
		var it Item
		if err := json.Unmarshal(r.Group, &it); err == nil && it.ID != "" {
			if it.Name == "" {
				it.Name = r.GroupName
			}
			return it, true
		}
		if id := rawID(r.Group); id != "" {
			return Item{ID: id, Name: nonEmpty(r.GroupName, id)}, true
		}
	}
	if id := rawID(r.GroupID); id != "" {
		return Item{ID: id, Name: nonEmpty(r.GroupName, id)}, true
	}
	return Item{}, false
}

func nonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// mergeEntries unions favorite lists in argument order and takes scalar
// preferences from the entry changed most recently; ties keep the earlier argument.
func mergeEntries(entries ...Entry) Entry {
	var out Entry
	var groups, instructors [][]Item
	latest := -1
	for i, e := range entries {
		groups = append(groups, e.Groups)
		instructors = append(instructors, e.Instructors)
		out.DefaultsApplied = out.DefaultsApplied || e.DefaultsApplied
		if latest < 0 || e.PrefsUpdatedAt.After(entries[latest].PrefsUpdatedAt) {
			latest = i
		}
	}
	out.Groups = uniqueItems(groups...)
	out.Instructors = uniqueItems(instructors...)
	if latest >= 0 {
		w := entries[latest]
		out.DeliveryDay = w.DeliveryDay
		out.NotifyTimes = append([]string{}, w.NotifyTimes...)
		out.PrefsUpdatedAt = w.PrefsUpdatedAt
	}
	if out.NotifyTimes == nil {
		out.NotifyTimes = []string{}
	}
	return out
}

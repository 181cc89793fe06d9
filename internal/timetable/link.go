package timetable

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var urlRe = regexp.MustCompile(`https?://[^\s<>"'` + "`" + `]+`)

const trailingPunct = ".,;:!?)]}»\"'"

var (
	linkKeys = []string{
		"url", "url1", "url2", "link", "online_link", "onlineLink", "meeting_url",
		"meetingUrl", "zoom", "zoom_link", "webinar_url", "href",
	}
	linkTextKeys = []string{
		"note", "comment", "comments", "description", "info", "additional",
		"title", "discipline", "subject",
	}
	remoteMarkers = []string{
		"онлайн", "online", "дистанц", "zoom", "teams", "webinar", "вебинар", "skype", "мтс линк",
	}
	onlineFlagKeys = []string{"online", "is_online", "isOnline", "remote", "distance"}
)

// findURL returns the first well-formed http(s) URL embedded in s.
func findURL(s string) string {
	for _, m := range urlRe.FindAllString(s, -1) {
		m = strings.TrimRight(m, trailingPunct)
		u, err := url.Parse(m)
		if err != nil || u.Host == "" {
			continue
		}
		return m
	}
	return ""
}

// discoverLink scans direct URL fields, then free-text fields, then one level of
// nested objects in the same order. Nested objects are visited in key order.
func discoverLink(r Record) string {
	if l := scanLink(r); l != "" {
		return l
	}
	keys := make([]string, 0, len(r))
	for k, v := range r {
		if _, ok := v.(map[string]any); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if l := scanLink(r[k].(map[string]any)); l != "" {
			return l
		}
	}
	return ""
}

func scanLink(r Record) string {
	for _, k := range linkKeys {
		if l := findURL(scalarString(r[k])); l != "" {
			return l
		}
	}
	for _, k := range linkTextKeys {
		if l := findURL(scalarString(r[k])); l != "" {
			return l
		}
	}
	return ""
}

func hasRemoteMarker(texts ...string) bool {
	for _, t := range texts {
		l := strings.ToLower(t)
		if l == "" {
			continue
		}
		for _, m := range remoteMarkers {
			if strings.Contains(l, m) {
				return true
			}
		}
	}
	return false
}

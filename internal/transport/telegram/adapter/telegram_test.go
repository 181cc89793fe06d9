package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"

	logx "timetablebot/pkg/logx"
)

func TestSplitTextShortIsSingleChunk(t *testing.T) {
	t.Parallel()
	// 11 runes, 21 bytes: the limit counts runes
	for _, limit := range []int{11, 20} {
		got := splitText("Нет занятий", limit, "")
		if len(got) != 1 || got[0] != "Нет занятий" {
			t.Fatalf("splitText(limit %d) = %q", limit, got)
		}
	}
	if got := splitText("Нет занятий", 10, ""); len(got) != 2 {
		t.Fatalf("splitText(limit 10) = %q, want 2 chunks", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	line := strings.Repeat("я", 30)
	text := strings.Join([]string{line, line, line, line}, "\n")
	got := splitText(text, 70, "")
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2: %q", len(got), got)
	}
	for _, c := range got {
		if utf8.RuneCountInString(c) > 70 {
			t.Fatalf("chunk of %d runes exceeds limit", utf8.RuneCountInString(c))
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %q has edge newlines", c)
		}
	}
	if strings.Join(got, "\n") != text {
		t.Fatalf("chunks do not reassemble the text")
	}
}

func TestSplitTextKeepsTagsWhole(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 18) + "<b>bold</b>"
	got := splitText(text, 20, "HTML")
	if len(got) < 2 || got[0] != strings.Repeat("a", 18) {
		t.Fatalf("splitText = %q, want cut before the tag", got)
	}
}

func TestNewRejectsEmptyToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: " "}, logx.Nop()); err == nil {
		t.Fatalf("New with empty token succeeded")
	}
}

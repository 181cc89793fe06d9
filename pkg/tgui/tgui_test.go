package tgui

import (
	"testing"
	"time"
)

func TestParseData(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in                     string
		scope, action, payload string
		ok                     bool
	}{
		{"tt:range:today", "tt", "range", "today", true},
		{"set:time:07:00", "set", "time", "07:00", true},
		{"menu:main", "menu", "main", "", true},
		{"broken", "", "", "", false},
		{":x", "", "", "", false},
	}
	for _, tc := range cases {
		s, a, p, ok := ParseData(tc.in)
		if s != tc.scope || a != tc.action || p != tc.payload || ok != tc.ok {
			t.Fatalf("ParseData(%q) = %q %q %q %v", tc.in, s, a, p, ok)
		}
	}
	if got := Data(" set ", "time", "07:00"); got != "set:time:07:00" {
		t.Fatalf("Data = %q", got)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"Привет", 10, "Привет"},
		{"Привет", 6, "Привет"},
		{"Привет", 4, "При…"},
		{"abc", 0, ""},
	}
	for _, tc := range cases {
		if got := TruncRunes(tc.in, tc.n); got != tc.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestPaginate(t *testing.T) {
	t.Parallel()
	items := []int{1, 2, 3, 4, 5, 6, 7}
	p := Paginate(items, 1, 3)
	if len(p.Items) != 3 || p.Items[0] != 4 || !p.HasPrev || !p.HasNext || p.Label() != "Стр. 2/3" {
		t.Fatalf("page = %+v", p)
	}
	p = Paginate(items, 9, 3)
	if p.Index != 2 || len(p.Items) != 1 || p.HasNext {
		t.Fatalf("clamped page = %+v", p)
	}
	if e := Paginate([]int(nil), 0, 5); e.Count != 1 || len(e.Items) != 0 {
		t.Fatalf("empty page = %+v", e)
	}
}

func TestTokenStore(t *testing.T) {
	t.Parallel()
	s := NewTokenStore(time.Minute, 2)
	now := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	type pick struct{ ID string }
	a, err := s.PutJSON(pick{ID: "1"})
	if err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	if !Fits(Data("pick", "g", a)) {
		t.Fatalf("token %q does not fit callback data", a)
	}
	var got pick
	if err := s.GetJSON(a, &got); err != nil || got.ID != "1" {
		t.Fatalf("GetJSON = %+v, %v", got, err)
	}

	now = now.Add(time.Second)
	_, _ = s.PutJSON(pick{ID: "2"})
	now = now.Add(time.Second)
	_, _ = s.PutJSON(pick{ID: "3"})
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
	if err := s.GetJSON(a, &got); err == nil {
		t.Fatalf("oldest token survived eviction")
	}

	now = now.Add(2 * time.Minute)
	if _, err := s.PutJSON(pick{ID: "4"}); err != nil {
		t.Fatalf("PutJSON: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len after expiry = %d, want 1", s.Len())
	}
}

func TestBuilder(t *testing.T) {
	t.Parallel()
	m := New().Title("📊", "Статус").KV("таймеры", "3 < 5").Inline(NewInline().Row(Btn("OK", "x:y"))).Build()
	want := "📊 <b>Статус</b>\n• <b>таймеры</b>: 3 &lt; 5"
	if m.Text != want {
		t.Fatalf("Text = %q, want %q", m.Text, want)
	}
	if m.Opt.ParseMode != "HTML" || m.Opt.ReplyMarkupAdapter == nil {
		t.Fatalf("Opt = %+v", m.Opt)
	}
}

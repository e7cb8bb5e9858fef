package query

import (
	"reflect"
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"alpha", []string{"alpha"}},
		{"  alpha \t\n beta ", []string{"alpha", "beta"}},
		// Non-ASCII whitespace is part of the token.
		{"a　b", []string{"a　b"}},
	}
	for _, tt := range tests {
		got := Tokenize(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuild_Empty(t *testing.T) {
	w := Build("  ", "", "")
	if w.SQL != "" || len(w.Args) != 0 {
		t.Fatalf("empty query produced %+v", w)
	}
	sql, args := w.Count()
	if sql != "SELECT COUNT(1) FROM note" || len(args) != 0 {
		t.Errorf("count = %q %v", sql, args)
	}
}

func TestBuild_TokensAndRange(t *testing.T) {
	w := Build("alpha x", "2024-01-01", "2024-12-31")

	if strings.Count(w.SQL, "LIKE ?") != 8 {
		t.Errorf("expected 8 LIKE placeholders, got SQL %q", w.SQL)
	}
	if !strings.Contains(w.SQL, ") AND (") {
		t.Errorf("tokens should be joined with AND: %q", w.SQL)
	}
	if !strings.Contains(w.SQL, `title LIKE ? ESCAPE '\' OR url LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\'`) {
		t.Errorf("fields should be joined with OR: %q", w.SQL)
	}
	if !strings.HasSuffix(w.SQL, "substr(created_at, 1, 10) BETWEEN ? AND ?") {
		t.Errorf("missing date range: %q", w.SQL)
	}

	want := []any{
		"%alpha%", "%alpha%", "%alpha%", "%alpha%",
		"%x%", "%x%", "%x%", "%x%",
		"2024-01-01", "2024-12-31",
	}
	if !reflect.DeepEqual(w.Args, want) {
		t.Errorf("args = %v, want %v", w.Args, want)
	}
}

func TestBuild_HalfRangeIgnored(t *testing.T) {
	w := Build("", "2024-01-01", "")
	if w.SQL != "" {
		t.Errorf("half-open range should be ignored, got %q", w.SQL)
	}
}

func TestBuild_NeverInterpolates(t *testing.T) {
	evil := "'; DROP TABLE note; --"
	w := Build(evil, "x' OR 1=1", "y")
	sqlWithoutEscape := strings.ReplaceAll(w.SQL, `ESCAPE '\'`, "")
	for _, frag := range []string{"DROP", "1=1", "'"} {
		if strings.Contains(sqlWithoutEscape, frag) {
			t.Errorf("user input leaked into SQL: %q", w.SQL)
		}
	}
	sql, args := w.Page(10, 0)
	if strings.Count(sql, "?") != len(args) {
		t.Errorf("placeholders %d != args %d", strings.Count(sql, "?"), len(args))
	}
}

func TestBuild_EscapesLikeWildcards(t *testing.T) {
	w := Build(`100% a_b c\d`, "", "")
	want := []string{`%100\%%`, `%a\_b%`, `%c\\d%`}
	for i, pattern := range want {
		if got := w.Args[i*len(searchFields)]; got != pattern {
			t.Errorf("token %d pattern = %q, want %q", i, got, pattern)
		}
	}
}

func TestPage_DoesNotAliasArgs(t *testing.T) {
	w := Build("a", "", "")
	_, a1 := w.Page(5, 0)
	_, a2 := w.Page(7, 14)
	if a1[len(a1)-2] != int64(5) || a2[len(a2)-2] != int64(7) {
		t.Errorf("page args aliased: %v / %v", a1, a2)
	}
	if len(w.Args) != 4 {
		t.Errorf("Page mutated Where.Args: %v", w.Args)
	}
}

func TestByDayAndTags(t *testing.T) {
	w := Build("go", "", "")
	sql, args := w.ByDay()
	if !strings.Contains(sql, "GROUP BY dt ORDER BY dt") || len(args) != 4 {
		t.Errorf("by day = %q %v", sql, args)
	}
	sql, _ = w.Tags()
	if !strings.HasPrefix(sql, "SELECT tags FROM note WHERE") {
		t.Errorf("tags = %q", sql)
	}
}

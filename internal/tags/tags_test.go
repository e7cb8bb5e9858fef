package tags

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"a", "a"},
		{"a, a b", "a,b"},
		{"  go,,rust  go ", "go,rust"},
		{"x，y，x", "x,y"},
		{"one\ttwo\nthree", "one,two,three"},
		{"B,b,B", "B,b"},
		{",,, ,", ""},
		{"日本，中文 日本", "日本,中文"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"a, a b", "  x，y  z,,", "c,b,a,b,c", "　wide　space", "",
	}
	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestSplit_Lowercases(t *testing.T) {
	got := Split("Go,RUST,,web")
	want := []string{"go", "rust", "web"}
	if len(got) != len(want) {
		t.Fatalf("Split = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Split[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

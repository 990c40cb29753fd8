package fnmatch

import "testing"

func TestMatchAny(t *testing.T) {
	cases := []struct {
		patterns []string
		path     string
		want     bool
	}{
		{[]string{"*.tmp"}, "/home/u/build/out.tmp", true},
		{[]string{"*.tmp"}, "/home/u/build/out.log", false},
		{[]string{"node_modules"}, "/repo/frontend/node_modules", true},
		{[]string{"node_modules"}, "/repo/frontend/node_modules/left-pad", false},
		{[]string{".git"}, "/repo/.git", true},
		{[]string{"*.go"}, "/repo", false},
	}
	for _, c := range cases {
		if got := MatchAny(c.patterns, c.path); got != c.want {
			t.Errorf("MatchAny(%v, %q) = %v, want %v", c.patterns, c.path, got, c.want)
		}
	}
}

func TestMatchInvalidPattern(t *testing.T) {
	if Match("[", "x") {
		t.Error("malformed pattern should not match")
	}
}

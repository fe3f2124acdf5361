package util

import (
	"path/filepath"
	"testing"
)

func TestAncestors(t *testing.T) {
	root := filepath.FromSlash("/a/b/c")

	got := Ancestors(filepath.Join(root, "file.txt"), false)
	want := []string{filepath.FromSlash("/a/b/c"), filepath.FromSlash("/a/b"), filepath.FromSlash("/a"), filepath.FromSlash("/")}
	if len(got) != len(want) {
		t.Fatalf("expected %d ancestors, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ancestor %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	dirs := Ancestors(root, true)
	if dirs[0] != root {
		t.Errorf("expected directory itself first, got %s", dirs[0])
	}
}

func TestIsWithin(t *testing.T) {
	testCases := []struct {
		path     string
		dir      string
		expected bool
	}{
		{"/a/b/c.txt", "/a", true},
		{"/a/b", "/a/b", true},
		{"/a/bc/d", "/a/b", false},
		{"/x/y", "/a", false},
		{"/a", "/a/b", false},
		{"/a/..b/c", "/a", true},
	}

	for _, tc := range testCases {
		t.Run(tc.path+"_in_"+tc.dir, func(t *testing.T) {
			got := IsWithin(filepath.FromSlash(tc.path), filepath.FromSlash(tc.dir))
			if got != tc.expected {
				t.Errorf("IsWithin(%q, %q) = %v, expected %v", tc.path, tc.dir, got, tc.expected)
			}
		})
	}
}

package tree

import (
	"strings"
	"testing"

	"pathman/api/internal/store"
)

func ptr(v int64) *int64 { return &v }

func TestBuildComputesDepthAndFullPath(t *testing.T) {
	entries := []store.Entry{
		{ID: 3, LocalPath: "notes", Title: "Notes", ParentID: ptr(1)},
		{ID: 1, LocalPath: "backend", Title: "Backend"},
		{ID: 2, LocalPath: "api", Title: "API", ParentID: ptr(1)},
		{ID: 4, LocalPath: "auth", Title: "Auth", ParentID: ptr(2)},
	}

	result := Build(entries)
	if len(result.Roots) != 1 {
		t.Fatalf("expected 1 root, got %d", len(result.Roots))
	}
	root := result.Roots[0]
	if root.Depth != 0 || root.FullPath != "backend" {
		t.Fatalf("root depth/path = %d/%q", root.Depth, root.FullPath)
	}
	if len(root.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(root.Children))
	}
	api := root.Children[0]
	if api.Title != "API" {
		t.Fatalf("children not sorted by local path: first is %q", api.Title)
	}
	if api.FullPath != "backend.api" || api.Depth != 1 {
		t.Fatalf("api depth/path = %d/%q", api.Depth, api.FullPath)
	}
	if len(api.Children) != 1 || api.Children[0].FullPath != "backend.api.auth" {
		t.Fatalf("grandchild path wrong: %+v", api.Children)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
}

func TestBuildFullPathUsesDots(t *testing.T) {
	entries := []store.Entry{
		{ID: 1, LocalPath: "2", Title: "second root"},
		{ID: 2, LocalPath: "1", Title: "first root"},
		{ID: 3, LocalPath: "1", Title: "child", ParentID: ptr(1)},
	}

	result := Build(entries)
	if len(result.Roots) != 2 || result.Roots[1].Title != "second root" {
		t.Fatalf("roots = %+v", result.Roots)
	}
	child := result.Roots[1].Children[0]
	if child.FullPath != "2.1" {
		t.Fatalf("child full path = %q, want 2.1", child.FullPath)
	}
}

func TestBuildFlatIsPreorder(t *testing.T) {
	entries := []store.Entry{
		{ID: 1, LocalPath: "1", Title: "first"},
		{ID: 2, LocalPath: "2", Title: "second"},
		{ID: 3, LocalPath: "1", Title: "child", ParentID: ptr(1)},
	}

	result := Build(entries)
	if len(result.Flat) != 3 {
		t.Fatalf("flat length = %d", len(result.Flat))
	}
	order := []string{result.Flat[0].Title, result.Flat[1].Title, result.Flat[2].Title}
	want := []string{"first", "child", "second"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("flat order = %v, want %v", order, want)
		}
	}
}

func TestBuildNaturalSiblingOrder(t *testing.T) {
	entries := []store.Entry{
		{ID: 1, LocalPath: "10", Title: "ten"},
		{ID: 2, LocalPath: "2", Title: "two"},
		{ID: 3, LocalPath: "1", Title: "one"},
	}

	result := Build(entries)
	got := []string{result.Roots[0].Title, result.Roots[1].Title, result.Roots[2].Title}
	want := []string{"one", "two", "ten"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("root order = %v, want %v", got, want)
		}
	}
}

func TestBuildDropsOrphans(t *testing.T) {
	entries := []store.Entry{
		{ID: 1, LocalPath: "a", Title: "root"},
		{ID: 2, LocalPath: "b", Title: "orphan", ParentID: ptr(99)},
	}

	result := Build(entries)
	if len(result.Roots) != 1 {
		t.Fatalf("expected orphan to be dropped, roots = %d", len(result.Roots))
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "parent 99 not found") {
		t.Fatalf("missing orphan warning: %v", result.Warnings)
	}
}

func TestBuildOrphanDescendantsAreNotCycles(t *testing.T) {
	entries := []store.Entry{
		{ID: 1, LocalPath: "a", Title: "orphan", ParentID: ptr(99)},
		{ID: 2, LocalPath: "b", Title: "grandchild", ParentID: ptr(1)},
	}

	result := Build(entries)
	if len(result.Roots) != 0 {
		t.Fatalf("expected empty forest, got %d roots", len(result.Roots))
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("warnings = %v", result.Warnings)
	}
	if !strings.Contains(result.Warnings[0], "parent 99 not found") {
		t.Fatalf("orphan warning wrong: %q", result.Warnings[0])
	}
	if !strings.Contains(result.Warnings[1], "ancestor missing") {
		t.Fatalf("descendant warning wrong: %q", result.Warnings[1])
	}
	for _, w := range result.Warnings {
		if strings.Contains(w, "cycle") {
			t.Fatalf("no cycle exists in this input: %q", w)
		}
	}
}

func TestBuildDetectsCycles(t *testing.T) {
	entries := []store.Entry{
		{ID: 1, LocalPath: "a", Title: "one", ParentID: ptr(2)},
		{ID: 2, LocalPath: "b", Title: "two", ParentID: ptr(1)},
		{ID: 3, LocalPath: "c", Title: "fine"},
	}

	result := Build(entries)
	if len(result.Roots) != 1 || result.Roots[0].Title != "fine" {
		t.Fatalf("expected only the acyclic root, got %d roots", len(result.Roots))
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("expected a warning per cycle member, got %v", result.Warnings)
	}
	for _, w := range result.Warnings {
		if !strings.Contains(w, "parent cycle") {
			t.Fatalf("unexpected warning %q", w)
		}
	}
}

func TestBuildDecodesContext(t *testing.T) {
	entries := []store.Entry{
		{ID: 1, LocalPath: "a", Title: "with context", ContextData: `{"selected":"x"}`},
		{ID: 2, LocalPath: "b", Title: "bad context", ContextData: `{not json`},
	}

	result := Build(entries)
	if result.Roots[0].Context["selected"] != "x" {
		t.Fatalf("context not decoded: %+v", result.Roots[0].Context)
	}
	if result.Roots[1].Context != nil {
		t.Fatalf("invalid context should decode to nil, got %+v", result.Roots[1].Context)
	}
}

func TestBuildEmptyInput(t *testing.T) {
	result := Build(nil)
	if result.Roots == nil || result.Flat == nil || result.Warnings == nil {
		t.Fatalf("result slices must be non-nil: %+v", result)
	}
	if len(result.Roots) != 0 {
		t.Fatalf("expected no roots, got %d", len(result.Roots))
	}
}

// Package tree materializes the flat entries table into the nested view
// clients render. The input order never matters: siblings are sorted
// naturally by local_path and depth plus the dotted full_path are computed
// on the way down.
package tree

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"pathman/api/internal/store"
)

// Node is one rendered entry with its computed placement.
type Node struct {
	store.Entry
	Depth    int            `json:"depth"`
	FullPath string         `json:"fullPath"`
	Context  map[string]any `json:"context,omitempty"`
	Children []*Node        `json:"children"`
}

// Result is a materialized tree plus its depth-first flattening.
type Result struct {
	Roots    []*Node  `json:"roots"`
	Flat     []*Node  `json:"flat"`
	Warnings []string `json:"warnings"`
}

// Build assembles the forest. Entries whose parent is missing are dropped
// with a warning, and parent cycles are reported instead of looping.
func Build(entries []store.Entry) Result {
	byID := make(map[int64]store.Entry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	// children keyed by parent id; 0 is the root sentinel since BIGSERIAL
	// ids start at 1.
	children := make(map[int64][]store.Entry)
	var warnings []string
	for _, e := range entries {
		parent := int64(0)
		if e.ParentID != nil {
			parent = *e.ParentID
			if _, ok := byID[parent]; !ok {
				warnings = append(warnings, fmt.Sprintf("entry %d (%s) dropped: parent %d not found", e.ID, e.Title, parent))
				log.Printf("tree: dropping orphan entry %d, parent %d missing", e.ID, parent)
				continue
			}
		}
		children[parent] = append(children[parent], e)
	}

	for parent := range children {
		siblings := children[parent]
		sort.SliceStable(siblings, func(i, j int) bool {
			return Less(siblings[i].LocalPath, siblings[j].LocalPath)
		})
	}

	result := Result{Roots: []*Node{}, Flat: []*Node{}}
	visited := make(map[int64]bool, len(entries))

	var walk func(parent int64, depth int, prefix string) []*Node
	walk = func(parent int64, depth int, prefix string) []*Node {
		nodes := make([]*Node, 0, len(children[parent]))
		for _, e := range children[parent] {
			if visited[e.ID] {
				continue
			}
			visited[e.ID] = true
			node := &Node{
				Entry:    e,
				Depth:    depth,
				FullPath: joinPath(prefix, e.LocalPath),
				Context:  decodeContext(e),
				Children: []*Node{},
			}
			result.Flat = append(result.Flat, node)
			node.Children = walk(e.ID, depth+1, node.FullPath)
			nodes = append(nodes, node)
		}
		return nodes
	}
	result.Roots = walk(0, 0, "")

	// Anything placed under a parent but never reached either descends from
	// a dropped orphan or sits on a parent cycle.
	for _, e := range entries {
		if visited[e.ID] {
			continue
		}
		if _, placed := childOf(children, e.ID); !placed {
			continue
		}
		if ancestorMissing(byID, e) {
			warnings = append(warnings, fmt.Sprintf("entry %d (%s) dropped: ancestor missing", e.ID, e.Title))
			log.Printf("tree: dropping entry %d, an ancestor was dropped as orphan", e.ID)
		} else {
			warnings = append(warnings, fmt.Sprintf("entry %d (%s) dropped: parent cycle", e.ID, e.Title))
			log.Printf("tree: dropping entry %d, parent chain forms a cycle", e.ID)
		}
	}

	result.Warnings = warnings
	if result.Warnings == nil {
		result.Warnings = []string{}
	}
	return result
}

// ancestorMissing walks the parent chain and reports whether it dead-ends
// at an entry whose own parent is absent. A chain that loops instead is a
// cycle, not a missing ancestor.
func ancestorMissing(byID map[int64]store.Entry, e store.Entry) bool {
	seen := map[int64]bool{e.ID: true}
	cur := e
	for cur.ParentID != nil {
		parent, ok := byID[*cur.ParentID]
		if !ok {
			return true
		}
		if seen[parent.ID] {
			return false
		}
		seen[parent.ID] = true
		cur = parent
	}
	return false
}

func childOf(children map[int64][]store.Entry, id int64) (int64, bool) {
	for parent, siblings := range children {
		for _, e := range siblings {
			if e.ID == id {
				return parent, true
			}
		}
	}
	return 0, false
}

func joinPath(prefix, local string) string {
	if prefix == "" {
		return local
	}
	return prefix + "." + local
}

// decodeContext parses context_data defensively: bad JSON renders as no
// context rather than failing the whole tree fetch.
func decodeContext(e store.Entry) map[string]any {
	if e.ContextData == "" {
		return nil
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(e.ContextData), &parsed); err != nil {
		log.Printf("tree: entry %d has invalid context_data: %v", e.ID, err)
		return nil
	}
	return parsed
}

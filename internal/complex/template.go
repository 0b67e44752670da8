// Package complex renders and mutates "complex:<name>" entries. The open
// template registry the original client kept in script files is collapsed
// into a closed set of variants behind one interface; unknown names fall
// back to the read-only default.
package complex

import (
	"errors"
	"fmt"
	"strings"
)

const typePrefix = "complex:"

// Node is the slice of an entry a template works on.
type Node struct {
	ID      int64
	Title   string
	Content string
	Checked bool
	Context map[string]any
}

// Event is one client interaction with a complex entry.
type Event struct {
	Action string `json:"action"`
	Option string `json:"option,omitempty"`
	Field  string `json:"field,omitempty"`
	Index  int    `json:"index,omitempty"`
	Value  any    `json:"value,omitempty"`
}

// Mutation is a field assignment the caller must persist.
type Mutation struct {
	Field string // "content", "checked" or "context"
	Value any
}

// View is the render payload handed to clients.
type View map[string]any

type Template interface {
	Name() string
	Render(node Node, children []Node) View
	HandleInteraction(node Node, event Event) ([]Mutation, error)
}

// ErrReadOnly is returned when an interaction targets a template that has
// no interactive behavior.
var ErrReadOnly = errors.New("template does not accept interactions")

// IsComplex reports whether an entry type names a complex template.
func IsComplex(entryType string) bool {
	return strings.HasPrefix(entryType, typePrefix)
}

// ForType resolves an entry type to its template. Unknown names get the
// read-only default rather than an error, so stale data still renders.
func ForType(entryType string) Template {
	switch strings.TrimPrefix(entryType, typePrefix) {
	case "selector":
		return selectorTemplate{}
	case "check":
		return multiCheckTemplate{}
	case "form":
		return genericFormTemplate{}
	default:
		return defaultTemplate{}
	}
}

// selectorTemplate shows a list of options and records one selection in
// context["selected"].
type selectorTemplate struct{}

func (selectorTemplate) Name() string { return "selector" }

func (selectorTemplate) Render(node Node, children []Node) View {
	return View{
		"template": "selector",
		"title":    node.Title,
		"options":  contextList(node.Context, "options"),
		"selected": contextValue(node.Context, "selected"),
	}
}

func (selectorTemplate) HandleInteraction(node Node, event Event) ([]Mutation, error) {
	if event.Action != "select" {
		return nil, fmt.Errorf("selector: unsupported action %q", event.Action)
	}
	options := contextList(node.Context, "options")
	for _, opt := range options {
		if s, ok := opt.(string); ok && s == event.Option {
			ctx := cloneContext(node.Context)
			ctx["selected"] = event.Option
			return []Mutation{{Field: "context", Value: ctx}}, nil
		}
	}
	return nil, fmt.Errorf("selector: option %q not offered", event.Option)
}

// multiCheckTemplate renders context["items"] as independent checkboxes
// and toggles them by index.
type multiCheckTemplate struct{}

func (multiCheckTemplate) Name() string { return "check" }

func (multiCheckTemplate) Render(node Node, children []Node) View {
	return View{
		"template": "check",
		"title":    node.Title,
		"items":    contextList(node.Context, "items"),
	}
}

func (multiCheckTemplate) HandleInteraction(node Node, event Event) ([]Mutation, error) {
	if event.Action != "toggle" {
		return nil, fmt.Errorf("check: unsupported action %q", event.Action)
	}
	items := contextList(node.Context, "items")
	if event.Index < 0 || event.Index >= len(items) {
		return nil, fmt.Errorf("check: item %d out of range", event.Index)
	}
	item, ok := items[event.Index].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("check: item %d is malformed", event.Index)
	}
	done, _ := item["done"].(bool)
	item["done"] = !done
	ctx := cloneContext(node.Context)
	ctx["items"] = items
	return []Mutation{{Field: "context", Value: ctx}}, nil
}

// genericFormTemplate renders context["fields"] and records submitted
// values under context["values"].
type genericFormTemplate struct{}

func (genericFormTemplate) Name() string { return "form" }

func (genericFormTemplate) Render(node Node, children []Node) View {
	return View{
		"template": "form",
		"title":    node.Title,
		"fields":   contextList(node.Context, "fields"),
		"values":   contextValue(node.Context, "values"),
	}
}

func (genericFormTemplate) HandleInteraction(node Node, event Event) ([]Mutation, error) {
	if event.Action != "set" || event.Field == "" {
		return nil, fmt.Errorf("form: unsupported action %q", event.Action)
	}
	ctx := cloneContext(node.Context)
	values, ok := ctx["values"].(map[string]any)
	if !ok {
		values = map[string]any{}
	}
	values[event.Field] = event.Value
	ctx["values"] = values
	return []Mutation{{Field: "context", Value: ctx}}, nil
}

// defaultTemplate is the fallback: content plus child titles, nothing to
// interact with.
type defaultTemplate struct{}

func (defaultTemplate) Name() string { return "default" }

func (defaultTemplate) Render(node Node, children []Node) View {
	titles := make([]string, 0, len(children))
	for _, child := range children {
		titles = append(titles, child.Title)
	}
	return View{
		"template": "default",
		"title":    node.Title,
		"content":  node.Content,
		"children": titles,
	}
}

func (defaultTemplate) HandleInteraction(node Node, event Event) ([]Mutation, error) {
	return nil, ErrReadOnly
}

func contextList(ctx map[string]any, key string) []any {
	if ctx == nil {
		return nil
	}
	list, _ := ctx[key].([]any)
	return list
}

func contextValue(ctx map[string]any, key string) any {
	if ctx == nil {
		return nil
	}
	return ctx[key]
}

func cloneContext(ctx map[string]any) map[string]any {
	cloned := make(map[string]any, len(ctx)+1)
	for k, v := range ctx {
		cloned[k] = v
	}
	return cloned
}

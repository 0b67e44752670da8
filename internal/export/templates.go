package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"pathman/api/internal/tree"
)

//go:embed templates/*.html
var templateFS embed.FS

var projectTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
		"renderTree": renderTree,
	}

	templateContent, err := templateFS.ReadFile("templates/project.html")
	if err != nil {
		// Fallback to built-in template if file not found
		projectTemplate = template.Must(template.New("project").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	projectTemplate = template.Must(template.New("project").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for project template rendering
type TemplateData struct {
	Name        string
	Version     int
	ModifiedBy  string
	GeneratedAt time.Time
	Roots       []*tree.Node
	Warnings    []string
}

// RenderProjectHTML renders the project template with provided data
func RenderProjectHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := projectTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderTree emits the nested list markup for a forest of entries.
func renderTree(nodes []*tree.Node) template.HTML {
	var buf bytes.Buffer
	writeNodes(&buf, nodes)
	return template.HTML(buf.String())
}

func writeNodes(buf *bytes.Buffer, nodes []*tree.Node) {
	if len(nodes) == 0 {
		return
	}
	buf.WriteString("<ul>")
	for _, node := range nodes {
		fmt.Fprintf(buf, `<li class="entry color-%s">`, template.HTMLEscapeString(node.StatusColor))
		if node.Checked {
			buf.WriteString(`<span class="check">&#x2713;</span> `)
		}
		fmt.Fprintf(buf, `<span class="title">%s</span>`, template.HTMLEscapeString(node.Title))
		if node.Content != "" {
			fmt.Fprintf(buf, `<div class="content">%s</div>`, template.HTMLEscapeString(node.Content))
		}
		writeNodes(buf, node.Children)
		buf.WriteString("</li>")
	}
	buf.WriteString("</ul>")
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Name}}</title>
</head>
<body>
  <h1>{{.Name}}</h1>
  <div class="meta">v{{.Version}} | {{.ModifiedBy}} | {{.GeneratedAt.Format "Jan 2, 2006"}}</div>
  {{renderTree .Roots}}
</body>
</html>`

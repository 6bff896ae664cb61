package export

import (
	"bytes"
	"html/template"
)

// TemplateData holds the rendered board snapshot.
type TemplateData struct {
	Title       string
	Description string
	OwnerName   string
	Columns     []TemplateColumn
}

// TemplateColumn is one column with its tasks.
type TemplateColumn struct {
	Title  string
	Locked bool
	Tasks  []TemplateTask
}

// TemplateTask is one task card.
type TemplateTask struct {
	Title       string
	Description string
	TypeLabel   string
	TypeColor   string
	Assignees   []string
}

var boardTemplate = template.Must(template.New("board").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; color: #1f2937; margin: 24px; }
  h1 { margin-bottom: 4px; }
  .meta { color: #6b7280; font-size: 13px; margin-bottom: 24px; }
  .column { page-break-inside: avoid; margin-bottom: 20px; }
  .column h2 { font-size: 16px; border-bottom: 2px solid #e5e7eb; padding-bottom: 6px; }
  .locked { color: #9ca3af; font-size: 12px; font-weight: normal; }
  .task { border: 1px solid #e5e7eb; border-radius: 6px; padding: 10px 12px; margin: 8px 0; }
  .task h3 { margin: 0 0 4px; font-size: 14px; }
  .task p { margin: 0; font-size: 13px; color: #4b5563; }
  .type { display: inline-block; font-size: 11px; padding: 1px 8px; border-radius: 10px; color: white; margin-bottom: 6px; }
  .assignees { font-size: 12px; color: #6b7280; margin-top: 6px; }
</style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{if .Description}}{{.Description}} &middot; {{end}}Owner: {{.OwnerName}}</div>
  {{range .Columns}}
  <div class="column">
    <h2>{{.Title}}{{if .Locked}} <span class="locked">(locked)</span>{{end}}</h2>
    {{range .Tasks}}
    <div class="task">
      {{if .TypeLabel}}<span class="type" style="background: {{.TypeColor}}">{{.TypeLabel}}</span>{{end}}
      <h3>{{.Title}}</h3>
      {{if .Description}}<p>{{.Description}}</p>{{end}}
      {{if .Assignees}}<div class="assignees">Assigned: {{range $i, $a := .Assignees}}{{if $i}}, {{end}}{{$a}}{{end}}</div>{{end}}
    </div>
    {{else}}
    <p class="meta">No tasks</p>
    {{end}}
  </div>
  {{end}}
</body>
</html>`))

// RenderBoardHTML renders the board snapshot to a printable HTML page.
func RenderBoardHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := boardTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

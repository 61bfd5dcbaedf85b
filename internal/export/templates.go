package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}
	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(reportHTML))
}

// TemplateData holds data for report template rendering
type TemplateData struct {
	Title       string
	OwnerName   string
	PartnerName string
	GeneratedAt time.Time
	Entries     []Entry
}

// RenderReportHTML renders the mood report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const reportHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #e45a92; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { width: 100%; border-collapse: collapse; }
    th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid #ddd; }
    th { background: #fdf2f7; }
    .mood { text-transform: capitalize; }
    .note { color: #444; font-size: 0.95em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">
    {{.OwnerName}}{{if .PartnerName}} &amp; {{.PartnerName}}{{end}}
    | generated {{formatDate .GeneratedAt "Jan 2, 2006"}}
  </div>
  {{if .Entries}}
  <table>
    <thead>
      <tr><th>Date</th><th>Who</th><th>Mood</th><th>Intensity</th><th>Score</th><th>Note</th></tr>
    </thead>
    <tbody>
      {{range .Entries}}
      <tr>
        <td>{{formatDate .CreatedAt "Jan 2, 2006 15:04"}}</td>
        <td>{{.Owner}}</td>
        <td class="mood">{{lower .Mood}}</td>
        <td>{{.Intensity}}/10</td>
        <td>{{printf "%.1f" .Score}}</td>
        <td class="note">{{.Note}}</td>
      </tr>
      {{end}}
    </tbody>
  </table>
  {{else}}
  <p>No mood entries recorded yet.</p>
  {{end}}
</body>
</html>`

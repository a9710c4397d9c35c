package notify

import (
	"html/template"
	"strings"
)

var funcs = template.FuncMap{"join": strings.Join}

const footer = `
<hr>
<p style="color: #666; font-size: 12px;">Generated at: {{.Generated}}</p>
</body>
</html>
`

var matchesPage = template.Must(template.New("matches").Funcs(funcs).Parse(`<html>
<body style="font-family: Arial, sans-serif; margin: 20px;">
<h2 style="color: #2e7d32;">Matches Found in Cause Lists</h2>
<p><strong>Date:</strong> {{.DateText}}</p>
<p><strong>Search Terms:</strong> {{join .Result.Terms ", "}}</p>
<p><strong>Total Matches:</strong> {{len .Result.Matches}}</p>
<p><strong>PDFs Searched:</strong> {{.Result.Searched}}</p>
{{- with .Result.Failed}}
<p><strong>PDFs that could not be read:</strong> {{range $i, $e := .}}{{if $i}}, {{end}}<a href="{{$e.URL}}">{{$e.Name}}</a>{{end}}</p>
{{- end}}
<h3>Match Details:</h3>
{{- range .Result.Matches}}
<div style="border: 1px solid #ddd; padding: 15px; margin: 10px 0; border-radius: 5px;">
<h4 style="color: #1976d2;">{{.Entry.Name}}</h4>
<p><strong>Term Found:</strong> {{.Term}}</p>
<p><strong>Page:</strong> {{.Page}}</p>
<p><strong>PDF Link:</strong> <a href="{{.Entry.URL}}">View PDF</a></p>
<pre style="white-space: pre-wrap; font-size: 12px; background-color: #f5f5f5; padding: 10px;">{{.Context}}</pre>
</div>
{{- end}}` + footer))

var noMatchesPage = template.Must(template.New("no matches").Funcs(funcs).Parse(`<html>
<body style="font-family: Arial, sans-serif; margin: 20px;">
<h2 style="color: #ff9800;">No Matches Found</h2>
<p><strong>Date:</strong> {{.DateText}}</p>
<p><strong>Search Terms:</strong> {{join .Result.Terms ", "}}</p>
<p><strong>PDFs Searched:</strong> {{.Result.Searched}}</p>
<p>No matches were found for your search terms in the cause lists.</p>` + footer))

var errorPage = template.Must(template.New("error").Parse(`<html>
<body style="font-family: Arial, sans-serif; margin: 20px;">
<h2 style="color: #d32f2f;">Error in Cause List Checker</h2>
<p>An error occurred while processing the cause list search:</p>
<pre style="color: #d32f2f; background-color: #ffebee; padding: 15px;">{{.Err}}</pre>` + footer))

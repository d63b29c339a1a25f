package mailer

import (
	"bytes"
	"html/template"
	"strings"
)

// Renderer wraps a body fragment into a full HTML document.
type Renderer interface {
	Wrap(title, innerHTML string) (string, error)
}

var layoutTmpl = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body style="margin:0;padding:0;background:#f4f4f4;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0"><tr><td align="center">
<table role="presentation" width="600" cellpadding="24" cellspacing="0" style="background:#ffffff;font-family:Arial,sans-serif;">
<tr><td>{{.Body}}</td></tr>
</table>
</td></tr></table>
</body>
</html>`))

// Layout is the default Renderer.
type Layout struct{}

func (Layout) Wrap(title, innerHTML string) (string, error) {
	var buf bytes.Buffer
	err := layoutTmpl.Execute(&buf, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(innerHTML)})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// IsFullDocument reports whether body already carries its own <html> wrapper.
func IsFullDocument(body string) bool {
	return strings.Contains(strings.ToLower(body), "<html")
}

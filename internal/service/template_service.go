// internal/service/template_service.go
package service

import (
	"html"
	"strings"
)

// RenderTemplate replaces every {{key}} in template with data[key] in a single pass,
// so substituted values are never re-expanded.
func RenderTemplate(template string, data map[string]string) string {
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// Personalization holds the per-recipient values for the message tokens.
type Personalization struct {
	Email          string
	FirstName      string
	LastName       string
	UnsubscribeURL string
}

func (p Personalization) values(escape bool) map[string]string {
	fullName := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	v := map[string]string{
		"email":           p.Email,
		"first_name":      p.FirstName,
		"last_name":       p.LastName,
		"full_name":       fullName,
		"unsubscribe_url": p.UnsubscribeURL,
	}
	if escape {
		for k, s := range v {
			v[k] = html.EscapeString(s)
		}
	}
	return v
}

// Personalize renders subject (plain text) and body (HTML, values escaped).
func Personalize(subject, body string, p Personalization) (string, string) {
	return RenderTemplate(subject, p.values(false)), RenderTemplate(body, p.values(true))
}

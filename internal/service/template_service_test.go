package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/mailleopard-backend/internal/service"
)

func TestRenderTemplateSinglePass(t *testing.T) {
	out := service.RenderTemplate("{{a}} {{b}} {{missing}}", map[string]string{"a": "{{b}}", "b": "B"})
	assert.Equal(t, "{{b}} B {{missing}}", out)
}

func TestPersonalizeEscapesBodyOnly(t *testing.T) {
	p := service.Personalization{
		Email:          "tom@example.com",
		FirstName:      "Tom & <Jerry>",
		LastName:       "",
		UnsubscribeURL: "https://x.test/unsubscribe/abc?a=1&b=2",
	}
	subject, body := service.Personalize(
		"Hi {{first_name}}",
		`<p>{{full_name}} ({{email}})</p><a href="{{unsubscribe_url}}">x</a>`,
		p,
	)

	assert.Equal(t, "Hi Tom & <Jerry>", subject)
	assert.Contains(t, body, "<p>Tom &amp; &lt;Jerry&gt; (tom@example.com)</p>")
	assert.Contains(t, body, `href="https://x.test/unsubscribe/abc?a=1&amp;b=2"`)
}

func TestPersonalizeFullNameTrimmed(t *testing.T) {
	_, body := service.Personalize("", "[{{full_name}}]", service.Personalization{LastName: " Doe "})
	assert.Equal(t, "[Doe]", body)
}

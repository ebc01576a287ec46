package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesMergeTags(t *testing.T) {
	r := New()
	tmpl := Template{
		TemplateID: "tpl-a",
		Version:    1,
		Subject:    "Quick question, {{ first_name }}",
		Body:       "Hi {{ first_name }}, following up about {{ topic }}.",
	}

	rendered, err := r.Render(tmpl, map[string]interface{}{
		"first_name": "Jordan",
		"topic":      "the March proposal",
	})
	require.NoError(t, err)
	assert.Equal(t, "Quick question, Jordan", rendered.Subject)
	assert.Equal(t, "Hi Jordan, following up about the March proposal.", rendered.Body)
}

func TestValidateCatchesSyntaxErrors(t *testing.T) {
	r := New()
	tmpl := Template{
		TemplateID: "tpl-broken",
		Version:    1,
		Subject:    "ok",
		Body:       "{{ unterminated",
	}
	assert.Error(t, r.Validate(tmpl))
}

func TestValidateAcceptsWellFormedTemplate(t *testing.T) {
	r := New()
	tmpl := Template{
		TemplateID: "tpl-a",
		Version:    1,
		Subject:    "Hi {{ first_name }}",
		Body:       "Body for {{ company }}",
	}
	assert.NoError(t, r.Validate(tmpl))
}

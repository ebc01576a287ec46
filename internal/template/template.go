// Package template renders versioned outreach templates using Liquid merge
// syntax ("{{ first_name }}"-style tags). A draft cannot be composed from a
// "versioned template" (spec.md §1) without a concrete renderer, so this
// package supplies one.
package template

import (
	"fmt"

	"github.com/osteele/liquid"
)

// Template is a named, versioned Liquid template body.
type Template struct {
	TemplateID string
	Version    int
	Subject    string
	Body       string
}

// Renderer renders Templates against a set of merge variables.
type Renderer struct {
	engine *liquid.Engine
}

// New builds a Renderer with the default Liquid engine configuration.
func New() *Renderer {
	return &Renderer{engine: liquid.NewEngine()}
}

// Rendered is a composed subject/body pair ready to hand to a draft-create
// call.
type Rendered struct {
	Subject string
	Body    string
}

// Render substitutes vars into tmpl's subject and body.
func (r *Renderer) Render(tmpl Template, vars map[string]interface{}) (Rendered, error) {
	subject, err := r.engine.ParseAndRenderString(tmpl.Subject, vars)
	if err != nil {
		return Rendered{}, fmt.Errorf("template: rendering subject of %s v%d: %w", tmpl.TemplateID, tmpl.Version, err)
	}
	body, err := r.engine.ParseAndRenderString(tmpl.Body, vars)
	if err != nil {
		return Rendered{}, fmt.Errorf("template: rendering body of %s v%d: %w", tmpl.TemplateID, tmpl.Version, err)
	}
	return Rendered{Subject: subject, Body: body}, nil
}

// Validate parses tmpl's subject and body without rendering, surfacing
// syntax errors before a draft is ever composed.
func (r *Renderer) Validate(tmpl Template) error {
	if _, err := r.engine.ParseString(tmpl.Subject); err != nil {
		return fmt.Errorf("template: invalid subject in %s v%d: %w", tmpl.TemplateID, tmpl.Version, err)
	}
	if _, err := r.engine.ParseString(tmpl.Body); err != nil {
		return fmt.Errorf("template: invalid body in %s v%d: %w", tmpl.TemplateID, tmpl.Version, err)
	}
	return nil
}

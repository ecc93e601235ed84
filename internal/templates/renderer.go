package templates

import (
	"strings"

	"go.uber.org/zap"

	"github.com/clubsuite/notify/internal/delivery"
)

// Renderer resolves templates into channel-agnostic payloads.
type Renderer struct {
	logger  *zap.Logger
	catalog *Catalog
}

// NewRenderer creates a renderer backed by the given catalog.
func NewRenderer(logger *zap.Logger, catalog *Catalog) *Renderer {
	return &Renderer{
		logger:  logger,
		catalog: catalog,
	}
}

// Render looks up templateID for the locale and substitutes vars into every
// text field. Missing required vars are logged and their placeholders stay
// literal in the output; rendering never fails on a bad variable map.
func (r *Renderer) Render(templateID string, vars map[string]string, locale string) (delivery.Payload, error) {
	tmpl, err := r.catalog.Lookup(templateID, locale)
	if err != nil {
		return delivery.Payload{}, err
	}
	return r.RenderTemplate(tmpl, vars), nil
}

// RenderTemplate substitutes vars into an already-resolved template.
func (r *Renderer) RenderTemplate(tmpl Template, vars map[string]string) delivery.Payload {
	if missing := missingVars(tmpl.RequiredVars, vars); len(missing) > 0 {
		r.logger.Warn("rendering with missing required variables",
			zap.String("template_id", tmpl.ID),
			zap.Strings("missing", missing))
	}

	payload := delivery.Payload{
		Title:    substitute(tmpl.Title, vars),
		Body:     substitute(tmpl.Body, vars),
		DeepLink: substitute(tmpl.DeepLink, vars),
		Icon:     substitute(tmpl.Icon, vars),
		ImageURL: substitute(tmpl.ImageURL, vars),
	}
	if len(tmpl.Actions) > 0 {
		payload.Actions = make([]delivery.Action, len(tmpl.Actions))
		for i, a := range tmpl.Actions {
			payload.Actions[i] = delivery.Action{
				Label: substitute(a.Label, vars),
				URL:   substitute(a.URL, vars),
			}
		}
	}
	return payload
}

func missingVars(required []string, vars map[string]string) []string {
	var missing []string
	for _, name := range required {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// substitute performs a single left-to-right scan over s, replacing every
// "{{name}}" token whose name is present in vars. Unknown tokens are kept
// literal so callers can spot them instead of getting fabricated values.
func substitute(s string, vars map[string]string) string {
	if !strings.Contains(s, "{{") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for {
		open := strings.Index(s, "{{")
		if open < 0 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[open:], "}}")
		if end < 0 {
			b.WriteString(s)
			break
		}
		end += open

		b.WriteString(s[:open])
		name := s[open+2 : end]
		if value, ok := vars[name]; ok {
			b.WriteString(value)
		} else {
			b.WriteString(s[open : end+2])
		}
		s = s[end+2:]
	}
	return b.String()
}

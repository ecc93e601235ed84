package templates

import (
	"fmt"

	"github.com/clubsuite/notify/internal/delivery"
)

// Template is a named, versioned message pattern. Published templates are
// immutable; variants derive from a base and inherit every unset field.
type Template struct {
	ID           string                    `json:"id"`
	Version      int                       `json:"version"`
	Category     delivery.NotificationType `json:"category"`
	Title        string                    `json:"title"`
	Body         string                    `json:"body"`
	RequiredVars []string                  `json:"required_vars,omitempty"`
	Icon         string                    `json:"icon,omitempty"`
	ImageURL     string                    `json:"image_url,omitempty"`
	DeepLink     string                    `json:"deep_link,omitempty"`
	Actions      []delivery.Action         `json:"actions,omitempty"`
	// BaseID is set on A/B variants and names the template they derive from.
	BaseID string `json:"base_id,omitempty"`
}

// VariantOverride is a partial template used to derive an A/B variant.
// Zero-valued fields inherit from the base.
type VariantOverride struct {
	Suffix   string
	Title    string
	Body     string
	Icon     string
	ImageURL string
	DeepLink string
	Actions  []delivery.Action
}

// NewVariants derives one template per override from the given base. Each
// variant gets the id "<base>#<suffix>" and records the base id.
func NewVariants(base Template, overrides []VariantOverride) []Template {
	variants := make([]Template, 0, len(overrides))
	for i, ov := range overrides {
		v := base
		v.BaseID = base.ID
		if ov.Suffix != "" {
			v.ID = fmt.Sprintf("%s#%s", base.ID, ov.Suffix)
		} else {
			v.ID = fmt.Sprintf("%s#v%d", base.ID, i+1)
		}
		if ov.Title != "" {
			v.Title = ov.Title
		}
		if ov.Body != "" {
			v.Body = ov.Body
		}
		if ov.Icon != "" {
			v.Icon = ov.Icon
		}
		if ov.ImageURL != "" {
			v.ImageURL = ov.ImageURL
		}
		if ov.DeepLink != "" {
			v.DeepLink = ov.DeepLink
		}
		if len(ov.Actions) > 0 {
			v.Actions = ov.Actions
		}
		variants = append(variants, v)
	}
	return variants
}

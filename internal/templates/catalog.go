package templates

import (
	"fmt"
	"sync"

	"github.com/clubsuite/notify/internal/delivery"
)

// Catalog maps template ids to templates. Localized entries are stored under
// "id@locale"; lookup falls back to the bare id when no localized entry exists.
type Catalog struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewCatalog creates a catalog seeded with the given templates.
func NewCatalog(seed ...Template) *Catalog {
	c := &Catalog{templates: make(map[string]Template, len(seed))}
	for _, t := range seed {
		c.templates[t.ID] = t
	}
	return c
}

// Register adds or replaces a template. A new version of a published template
// should bump Version rather than mutate the stored value in place.
func (c *Catalog) Register(t Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[t.ID] = t
}

// RegisterAll adds every template in the slice.
func (c *Catalog) RegisterAll(ts []Template) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range ts {
		c.templates[t.ID] = t
	}
}

// Lookup resolves a template id for a locale, trying "id@locale" first and
// falling back to the bare id.
func (c *Catalog) Lookup(id, locale string) (Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if locale != "" {
		if t, ok := c.templates[id+"@"+locale]; ok {
			return t, nil
		}
	}
	if t, ok := c.templates[id]; ok {
		return t, nil
	}
	return Template{}, fmt.Errorf("template %q not found", id)
}

// DefaultCatalog returns the built-in club notification templates.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Template{
			ID:           "payment_due",
			Version:      1,
			Category:     delivery.TypePaymentDue,
			Title:        "Payment due: {{plan}}",
			Body:         "Hi {{name}}, your {{plan}} membership payment of {{amount}} is due on {{due_date}}.",
			RequiredVars: []string{"name", "plan", "amount", "due_date"},
			DeepLink:     "club://billing/{{invoice_id}}",
			Actions: []delivery.Action{
				{Label: "Pay now", URL: "club://billing/{{invoice_id}}/pay"},
			},
		},
		Template{
			ID:           "class_reminder",
			Version:      1,
			Category:     delivery.TypeTransactional,
			Title:        "{{class}} starts soon",
			Body:         "Your {{class}} class starts at {{time}}. See you there, {{name}}!",
			RequiredVars: []string{"name", "class", "time"},
			DeepLink:     "club://schedule/{{class_id}}",
		},
		Template{
			ID:           "promo_offer",
			Version:      1,
			Category:     delivery.TypePromotional,
			Title:        "{{offer}} just for you",
			Body:         "{{name}}, enjoy {{offer}} until {{expires}}.",
			RequiredVars: []string{"name", "offer", "expires"},
			ImageURL:     "https://cdn.clubsuite.io/promos/{{offer_id}}.png",
			DeepLink:     "club://offers/{{offer_id}}",
		},
	)
}

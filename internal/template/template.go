// Package template renders reminder message templates.
//
// Templates use {placeholder} syntax. Substitution is permissive: only the
// supplied variables are replaced, and unrecognized placeholders are left
// verbatim so templates can reference variables introduced later without
// breaking older engine versions.
package template

import (
	"strings"

	"github.com/adminsuite/reminderd/internal/models"
)

// Render substitutes named variables into a message template.
// Unknown placeholders are left untouched in the output.
func Render(tmpl string, vars map[string]string) string {
	out := tmpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// EntityVars builds the template variable map for a tracked entity.
// Subscription templates use {service_name}/{expiry_date}; meetings and calls
// use {title}/{scheduled_date}. Both aliases are always populated so one
// template body can serve any kind. Extra per-entity variables (e.g. {amount})
// ride along from the entity's metadata.
func EntityVars(entity models.TrackedEntity) map[string]string {
	vars := map[string]string{
		"client_name":    entity.CounterpartyName,
		"service_name":   entity.SubjectName,
		"title":          entity.SubjectName,
		"expiry_date":    entity.TriggerAt.Format("2006-01-02"),
		"scheduled_date": entity.TriggerAt.Format("2006-01-02"),
	}
	for k, v := range entity.TemplateVars {
		vars[k] = v
	}
	return vars
}

// Package catalog provides named policy templates for space creation.
//
// Templates are immutable defaults: creating a space from a template copies
// the template's policy, and edits to the space's policy never flow back.
// The catalog ships built-in templates (close-relationship, team,
// public-broadcast, and friends) and can overlay templates from a YAML
// directory, hot-reloaded on file change.
package catalog

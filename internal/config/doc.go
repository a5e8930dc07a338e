// Package config loads, validates, and normalizes murmur's TOML
// configuration. Defaults live in defaults.go; validation rules in
// validate.go. Paths are expanded (~, relative) during Load so the rest of
// the codebase only ever sees absolute paths.
package config

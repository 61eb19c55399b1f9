// Package config loads, normalizes, and validates tubefront configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// COOKIE_FILE and BROWSER_UA. The Config type centralizes every knob the
// daemon and CLI need, so the scratch directory, engine tuning, and rendition
// policy are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// expanded paths, canonical log formats, and clear validation errors.
package config

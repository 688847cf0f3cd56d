// Package config loads, normalizes, and validates voxbrief configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// VOXBRIEF_API_KEY and OPENAI_API_KEY for the analysis credential. The Config
// type centralizes every knob the CLI and presentation server need.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config

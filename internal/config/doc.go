// Package config loads, normalizes, and validates captioner configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CAPTIONER_FONT and NTFY_TOPIC. The Config type centralizes every knob the CLI
// and the caption pipeline need: workspace and output directories, the caption
// style (font, size, colour, margins), ffmpeg binaries and stage timeouts, and
// render concurrency.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

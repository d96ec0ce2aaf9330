// Package config loads, normalizes, and validates the test station
// configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// HIPOT_ADMIN_PASSWORD (optionally sourced from a .env file next to the
// config). Test parameter and cavity sections are decoded leniently: a
// malformed value keeps its default and is reported through Config.Warnings
// instead of failing the load, so the station stays usable while an
// operator fixes the file.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

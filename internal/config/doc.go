// Package config loads, normalizes, and validates storyforge configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// GEMINI_API_KEY. Timing knobs that were fixed constants in earlier versions
// (scene fallback duration, music recording window) are configurable here.
package config

// Package services defines shared utilities consumed by the production pipeline
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, scene IDs, asset kinds, phases,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures as
//     recoverable (isolated to one scene, asset, or session) or fatal to a
//     single call.
//
// Subpackages hold the adapters for the generation backend, the script-writing
// LLM, and the streaming music endpoint.
package services

// Package scene defines the production data model: scenes in their ordered
// sequence, the per-scene image and audio asset maps, the generation status
// table, and the Session that owns them for one production.
//
// A Session is passed by pointer to every pipeline component. Its methods are
// safe for concurrent use; generation status and asset entries are written by
// the generation orchestrator only.
package scene

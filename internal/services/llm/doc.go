// Package llm provides an OpenRouter-compatible chat client and the script
// writer built on it.
//
// The script writer feeds the first two production phases: Ideas turns a
// premise into short pitches and Script expands one pitch into numbered
// scenes. Model output is untrusted; ParseScript validates it into
// scene.Scene values and rejects malformed shapes with ErrMalformedInput
// before anything reaches the session.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, empty completions and
// network timeouts with exponential backoff (base 1s, max 10s, up to 4
// attempts by default), honouring Retry-After. Context cancellation aborts
// retries immediately.
package llm

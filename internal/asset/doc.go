// Package asset classifies opaque asset references and materializes them into
// bytes.
//
// A reference is one of three closed variants: an inline data URI, a raw
// base64 blob whose MIME type is guessed from the target filename, or a remote
// URL. Classify decides which; Resolver turns any variant into bytes, fetching
// remote URLs through a bigcache-backed response cache.
package asset

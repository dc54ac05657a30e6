// Package genai adapts a Gemini-style generateContent endpoint to the
// generation.Client contract.
//
// Image requests ask the image model for an IMAGE modality; voice requests
// ask the speech model for AUDIO with a prebuilt voice. The first inlineData
// part of the first candidate is the payload. Transport failures are retried
// with exponential backoff on 408, 429, 5xx and timeouts, honouring
// Retry-After. Every outcome, including malformed responses, is returned as a
// generation.Result; the client never panics or returns an error.
package genai

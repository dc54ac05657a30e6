// Package production drives a session through its named phases:
// AwaitingIdeas, AwaitingScript, Producing and Ready.
//
// One call to Driver.Run advances phase by phase as each completes. Callers
// may enter later phases directly by supplying an idea or a finished scene
// list. Idea and script failures end the run with an error; per-asset
// production failures never do and are reported in the Outcome.
package production

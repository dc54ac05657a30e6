// Package logs reads the storyforge log file for the CLI.
//
// Last returns the final lines with bounded memory; Follow polls for appended
// lines until its context ends and restarts from the top when the file is
// truncated or rotated. Both accept a Match func so callers can narrow output
// to one session or correlation id.
package logs

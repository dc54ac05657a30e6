// Package preflight provides readiness checks for the filesystem paths and
// backends storyforge depends on.
//
// These checks run in two contexts:
//   - produce calls CheckFreeSpace on the output directory before spending
//     generation quota on a bundle it could not write.
//   - The CLI "config check" command runs RunAll to display readiness. Backend
//     probes that send requests only run when asked for.
package preflight

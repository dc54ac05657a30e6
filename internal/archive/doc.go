// Package archive assembles production assets into a single zip bundle.
//
// Entries are resolved one at a time and written in caller order. An entry
// that cannot be resolved is replaced by "<filename>.error.txt" holding the
// reason; the bundle is still produced. Only a bundle with nothing real to
// hold is refused, with services.ErrEmptyArchive.
package archive

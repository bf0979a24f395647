// Package provision copies the bundled read-only SQLite databases into the
// writable database directory.
//
// Only entries of the bundle folder whose names end in ".db" are copied.
// Each file is streamed through a fixed-size buffer, so a large database is
// never held in memory. A pass either completes or stops at the first I/O
// failure; files copied earlier in the same pass are left in place.
//
// The Provisioner does not decide whether a pass is needed. That is the
// version gate's job (see package startup).
package provision

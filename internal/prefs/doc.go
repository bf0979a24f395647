// Package prefs persists small integer preferences across restarts.
//
// The only preference lexhost keeps today is the version marker: the
// version code of the last launch whose provisioning pass completed.
// SQLiteStore keeps it in the state database; MemoryStore backs tests and
// ephemeral runs.
package prefs

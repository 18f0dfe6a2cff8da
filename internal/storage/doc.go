// Package storage persists registered users, the process catalog and the
// reminder dispatch log.
//
// The dispatch log is the deduplication authority: TryRecordDispatch inserts
// a (user, process, date, slot) record atomically and reports whether it was
// new. Callers send a reminder only when it was.
//
// Drivers:
//   - "sqlite": modernc.org/sqlite database file
//   - "memory": process-local maps, for tests and dry runs
package storage

// Package checkpoint persists the progress of long-running backup jobs so
// they can resume after interruption instead of restarting from zero.
//
// Each sync job gets a Checkpoint record keyed by its query string and
// stored as a JSON file, written atomically. The lifecycle is
// CREATED -> IN_PROGRESS -> COMPLETED or INTERRUPTED; an INTERRUPTED
// checkpoint stays on disk until a later run resumes it or the user
// discards it explicitly.
//
// Resume semantics are at-least-once: progress is persisted every N items,
// so after a crash up to N-1 items may be fetched again. The store assumes
// the remote enumeration order for a query is stable across runs.
package checkpoint

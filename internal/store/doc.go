// Package store owns the profile document: the organization, its groups, and
// the deduplicated people who belong to them.
//
// Every operation loads the whole document through a persist.Backend,
// upgrades it with the migrate package when it is stale, and for mutations
// writes the whole document back. There are no partial writes.
//
// # Concurrency
//
// Each read-modify-write cycle runs while holding Backend.Lock: an
// in-process mutex plus, for file-backed stores, an flock(2) advisory lock
// on "<path>.lock". Concurrent writers serialize instead of losing updates.
//
// # Identity
//
// UpsertPerson derives a dedup key from the profile's contact fields
// (phone first, then email). Records sharing a non-empty key converge onto
// one Person; later submissions enrich the profile field by field and
// append to its sources and memberships.
//
// # Failure policy
//
//   - Not found (person, group, event): reported as a false result.
//   - Nothing persisted yet: an empty document, counted as reason=not_found.
//   - Unreadable or unrecognized document: an empty document, logged at WARN
//     and counted as reason=corrupt. The original bytes are preserved by the
//     backend before the first write replaces them.
//   - Document from a newer release: migrate.ErrNewerSchema, never
//     overwritten.
//   - Write failure: returned to the caller, not retried.
package store

// Package domain contains the core entities and value objects for sensorsync.
//
// This package is the innermost layer. It has no dependencies on infrastructure
// concerns (file system, HTTP, logging) and contains only the rules that govern
// messages, per-stream queues and aligned tuples.
//
// # Entities
//
//   - [Message]: one timestamped observation from one stream
//   - [StreamQueue]: bounded, timestamp-ordered buffer of pending messages for one stream
//   - [AlignedTuple]: one message per stream, mutually within the sync tolerance
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction (Message, AlignedTuple)
//   - Free of infrastructure dependencies
//   - Not safe for concurrent use on their own; the synchronizer owns the lock
package domain

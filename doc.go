/*
Package chronicle provides versioned state built from an append-only
graph of changes, with operational transforms to merge branches of that
graph without losing either side's intent.

Every change records one operation and the change it was made on top
of, back to the sentinel ROOT. A Chronicle keeps one live value (an
array, an object, a counter, or anything an Adapter is written for) in
the state of some change in the graph, and moves it around the graph by
reverting and replaying operations. Refs name changes, like branch heads
in git.

Uses

- Undo/redo and time travel over a document model

- Offline editing, with branches merged when replicas meet

- Auditable history of how a value came to be


Merging

Two branches diverging from a common ancestor are joined by a merge
change. The default strategy transforms each branch's operations
against the other's (see package ot), so both sets of edits survive.
The "mine" and "theirs" strategies keep one side, and "manual" replays
a caller-chosen sequence of changes. A merge change stores the
operations needed to reach it from either parent, so it can be
traversed from both sides.

Storage

An Index holds changes and refs. NewIndex keeps them in memory;
NewPersistentIndex writes them through to any Persist, such as the file,
S3, Badger and SQLite stores under persist/. Transfer copies what one
Index has and another lacks, which is all a replicator needs from this
package.

Concurrency

Indexes can be shared. A Chronicle owns mutable state (its position and
the live value behind its Adapter) and must be used from one goroutine
at a time.
*/
package chronicle

// Package models defines domain entities and persistence interfaces for the relisten sync engine.
//
// The package contains two categories of types:
//
// 1. Wire-shaped values produced by ingestion:
//   - [Event] : A single listen reported by the provider, pre-resolution
//
// 2. Catalog entities backed by the local database:
//   - [Artist] : Catalog artist with free-text metadata (bio, tags, similar artists)
//   - [Album] : Catalog album owned by an artist
//   - [Track] : Catalog track with denormalized artist/album names
//   - [Scrobble] : A committed listen event, keyed by (artist, track, listened_at)
//   - [SyncState] : Per-(user, source) checkpoint cursor
//
// Every catalog entity carries a [Provenance] tag recording which process
// created or last verified the row. Rows tagged [ProvenanceManual] are
// protected: the resolver never enriches or merges over them.
package models

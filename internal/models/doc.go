// Package models defines domain entities and pure domain logic for the bpmx analysis cache.
//
// The package contains three categories of types:
//
// 1. Ephemeral values computed per request:
//   - [TrackIdentifiers] : canonical metadata resolved from a platform track ID
//   - [PreviewCandidate] : one attempted preview URL with its provider tag
//
// 2. The durable cache entity:
//   - [TrackAnalysis] : one record per platform track ID (ISRC unique when known)
//     holding both algorithms' outcomes, selection discriminators, manual
//     overrides, provenance, candidates and review state
//
// 3. Pure functions the persistence layer and pipeline both rely on:
//   - [MergeAnalysis] : field-level coalescing merge mirrored by the SQL upsert
//   - [TrackAnalysis.SelectTempo] / [TrackAnalysis.SelectKey] : deterministic
//     selection between primary, secondary and manual values
//
// Keeping merge and selection as pure functions over the entity lets them be
// tested in isolation from the database layer.
package models

// package repositories provides the persistence layer for analysis records.
//
// The cache is a single table keyed by platform track ID. Pipeline writes go
// through an upsert whose ON CONFLICT clause mirrors models.MergeAnalysis;
// selection and review changes go through targeted updates so a stale
// pipeline write can never clobber a reviewer's or DJ's decision.
package repositories

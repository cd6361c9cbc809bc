// Package sqlite persists fusion runs and their per-box TTC estimates.
//
// All SQL lives here rather than in the estimation packages, which keeps the
// pipeline free of storage concerns and lets tests run the pipeline without a
// database. The schema is managed by golang-migrate from migrations embedded
// in the binary.
package sqlite

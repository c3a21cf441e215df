// Package cache defines the disk-backed store responsible for translating
// save requests into BaseDir/<appID>/<name> files. The store exposes
// read/write primitives with safe semantics (temp file + rename) and surfaces
// file info (size, modtime) for higher layers to answer metadata queries.
// All operations serialize on a single process-wide mutex so callers observe
// a consistent view without duplicating filesystem logic.
package cache

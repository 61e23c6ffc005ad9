// stardwh turns flat listing, calendar and neighbourhood extracts into a star
// schema (three dimensions and one fact table) and loads it into PostgreSQL.
// The root package holds the types shared by every stage: the raw rows
// produced by extraction, the normalized records, the dimension and fact rows,
// the Translator used to hand out surrogate keys, and the warning and error
// kinds that flow between stages.
//
// A run moves through the stages below. Each stage consumes the complete
// output of the one before it and returns new values - nothing handed to a
// stage is modified by it.
//
// # Extract
//
// The csv package reads the source files (local paths, http URLs or
// s3://bucket/key objects) into typed rows, remembering the line each row
// came from so that later stages can point at the offending input. It is
// not the job of extraction to interpret values; prices stay strings and
// dates stay strings until the Normalizer gets them.
//
// # Normalize
//
// The normalize package parses dates and prices, turns availability flags
// into occupied flags, folds neighbourhood text and joins listing details
// onto listings. A malformed value fails the whole batch with a ParseError.
//
// # Build dimensions
//
// The dimension package deduplicates listings and locations in first-seen
// order and dates in chronological order, allocating dense surrogate keys
// from a Translator. The three builds share no data and run concurrently.
// The borough package then attaches boroughs to locations.
//
// # Assemble facts
//
// The fact package produces one fact row per calendar row, resolving every
// natural key through the dimension lookups. Rows whose listing cannot be
// resolved keep a nil key and are reported as ReferentialGap warnings.
//
// # Verify
//
// The verify package checks key coverage, coordinate round trips, date
// ordering and row-count conservation. It is a gate: any failure stops the
// run before anything is written.
//
// # Load
//
// The postgres package replaces each table inside its own transaction,
// using COPY for the fact table.
package stardwh

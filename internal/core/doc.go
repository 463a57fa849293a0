// Package core loads parsed export files into PostgreSQL.
//
// Every table found in an export file becomes a stored table of TEXT columns,
// named exactly as in the file, plus an xer_file_id column pointing at the
// import's row in the xer_files control table. Stored tables only ever grow:
// fields a file declares that a table lacks are added as columns, and
// columns a file does not mention are left in place and read NULL.
//
// # Import
//
// [Service.ImportFile] is the entry point. One call is one transaction:
//
//  1. The file is size checked and parsed into an xer.Document.
//  2. A transaction begins and takes an advisory lock per stored table the
//     file touches, in sorted order.
//  3. The xer_files row is inserted and its id becomes the back-reference.
//  4. Each table is reconciled and filled inside its own savepoint. A table
//     whose schema cannot be reconciled is rolled back to the savepoint and
//     skipped. Rows go in with COPY, falling back to one savepoint per row so
//     a bad row is logged and skipped without losing the rest.
//  5. The transaction commits.
//
// If the store reports a lock timeout, deadlock or serialization failure,
// the attempt is rolled back and the import runs again from step 2 with a
// growing delay. Any other failure rolls everything back and is returned as
// an [*ImportFailure]; nothing from a failed import is persisted.
//
// Import ids come from an identity column, so they increase with every
// committed import but may skip values used by rolled-back attempts.
//
// # Errors
//
// [MapError] turns errors into short messages with a code for the CLI and
// the inbox failure notes.
package core

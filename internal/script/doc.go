// Package script turns raw SQL script text into parameterized statements.
//
// Script text may hold several ';' separated statements spread over many
// lines, whole-line "--" comments and ${name} placeholders. Normalization
// collapses the formatting, splits the statements and replaces every
// placeholder with a positional marker, recording the parameter names in
// order of appearance. Repeated names are kept: each occurrence binds
// independently.
//
// A Script is immutable once built and safe to share between goroutines.
// Statements only hold parameter names, never values.
package script

// Package value provides the hierarchical value container that SQL scripts
// read parameters from and write results into.
//
// The container is an insertion-ordered Object with typed scalar leaves,
// nested objects and a tabular Report variant. Looking up a missing key is a
// non-failing "not found" that is distinct from a key holding Null.
//
// Object keys are NFC normalized on every access so that lookups match
// regardless of the Unicode form the key was written in.
package value

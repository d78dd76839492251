// Package sanitizer normalizes user input before validation and storage.
//
// All functions are idempotent: applying them twice gives the same result as
// applying them once. Invalid input degrades to an empty string or slice rather
// than an error; validators decide whether empty is acceptable.
//
// Normalization includes:
//   - Free text (booking purpose, room names): trim and collapse whitespace, drop control characters
//   - Identifiers (usernames, emails): trim and lower-case
//   - Room features: trim, collapse whitespace, lower-case
//   - Slices: remove duplicates and empty values after normalization
package sanitizer

// Package sentinel provides a string-backed error type for declaring
// sentinel errors as constants.
//
// Values created with errors.New live in package variables and can be
// reassigned by any importer. Error values are plain strings, so they can be
// declared with const and still work with errors.Is through wrapped chains.
package sentinel

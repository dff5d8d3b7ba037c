// Package types defines the error carrier, retry policy, and configuration shared by
// the litewrap packages.
//
// Every failure reported by the engine or by the wrapper itself is an *Error holding a
// numeric status code and a message. Engine statuses use SQLite's result codes
// (extended codes included); misuse of the wrapper uses CodeWrapper.
package types

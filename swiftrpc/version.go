// Package swiftrpc provides version information shared across the broker,
// worker, and client binaries.
package swiftrpc

// VERSION of the swift-rpc distribution.
var VERSION = "undefined" // set during the build process with -ldflags

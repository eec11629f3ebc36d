// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing events, recording tools and checking event
// sequences. Not intended for production usage.
package testutil

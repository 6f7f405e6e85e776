// File: protocol/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package protocol implements the message codec: closures built from typed
// arguments, their wire serialization, decoding back from wire bytes, and
// late-bound invocation of listener handlers.
package protocol

// File: api/schema.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Schema boundary: interface and message descriptors normally produced by a
// code generator from protocol XML. The core only reads them.

package api

// Message describes one request or event of an interface.
//
// Signature is a string over the argument codes
//
//	i int32, u uint32, f fixed, s string, o object, n new_id, a array, h fd
//
// each optionally preceded by '?' (nullable). A leading decimal number is the
// interface version the message was introduced in.
//
// Types holds, per argument, the interface expected for object and new_id
// arguments (nil for every other argument or for an untyped new_id).
type Message struct {
	Name      string
	Signature string
	Types     []*Interface
}

// Interface describes a protocol interface.
type Interface struct {
	Name    string
	Version uint32
	Methods []Message
	Events  []Message
}

// Equal compares interfaces by name, like two generated copies of the same
// schema would.
func (i *Interface) Equal(other *Interface) bool {
	if i == other {
		return true
	}
	if i == nil || other == nil {
		return false
	}
	return i.Name == other.Name
}

// String returns the interface name.
func (i *Interface) String() string {
	if i == nil {
		return "[unknown]"
	}
	return i.Name
}

// Object is anything that is addressed on the wire by an id.
type Object interface {
	ID() uint32
	Interface() *Interface
}

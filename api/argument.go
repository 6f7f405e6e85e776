// File: api/argument.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Tagged argument values carried by a closure.

package api

import "fmt"

// ArgType is a signature type code.
type ArgType byte

const (
	ArgInt    ArgType = 'i'
	ArgUint   ArgType = 'u'
	ArgFixed  ArgType = 'f'
	ArgString ArgType = 's'
	ArgObject ArgType = 'o'
	ArgNewID  ArgType = 'n'
	ArgArray  ArgType = 'a'
	ArgFD     ArgType = 'h'
)

// Valid reports whether t is a known type code.
func (t ArgType) Valid() bool {
	switch t {
	case ArgInt, ArgUint, ArgFixed, ArgString, ArgObject, ArgNewID, ArgArray, ArgFD:
		return true
	}
	return false
}

func (t ArgType) String() string {
	switch t {
	case ArgInt:
		return "int"
	case ArgUint:
		return "uint"
	case ArgFixed:
		return "fixed"
	case ArgString:
		return "string"
	case ArgObject:
		return "object"
	case ArgNewID:
		return "new_id"
	case ArgArray:
		return "array"
	case ArgFD:
		return "fd"
	default:
		return fmt.Sprintf("ArgType(%q)", byte(t))
	}
}

// Fixed is a signed 24.8 fixed-point number.
type Fixed int32

// FixedFromFloat converts f, truncating toward zero.
func FixedFromFloat(f float64) Fixed { return Fixed(f * 256) }

// FixedFromInt converts an integer.
func FixedFromInt(i int) Fixed { return Fixed(i * 256) }

// Float returns the value as a float64.
func (f Fixed) Float() float64 { return float64(f) / 256 }

// Int returns the integer part, truncated toward zero.
func (f Fixed) Int() int { return int(f / 256) }

// Argument is one typed value of a closure. Only the field that matches Type
// is meaningful. Null marks a null string, object or array.
//
// For object and new_id arguments Object is the live object when known;
// ID carries the raw wire id (set on decode, or used on encode when Object is
// nil).
type Argument struct {
	Type   ArgType
	Int    int32
	Uint   uint32
	Fixed  Fixed
	Str    string
	Array  []byte
	Object Object
	ID     uint32
	FD     int
	Null   bool
}

// ObjectID returns the wire id of an object or new_id argument.
func (a *Argument) ObjectID() uint32 {
	if a.Object != nil {
		return a.Object.ID()
	}
	return a.ID
}

// Int32 builds an int argument.
func Int32(v int32) Argument { return Argument{Type: ArgInt, Int: v} }

// Uint32 builds a uint argument.
func Uint32(v uint32) Argument { return Argument{Type: ArgUint, Uint: v} }

// FixedArg builds a fixed-point argument.
func FixedArg(v Fixed) Argument { return Argument{Type: ArgFixed, Fixed: v} }

// String builds a string argument.
func String(s string) Argument { return Argument{Type: ArgString, Str: s} }

// NullString builds a null string argument.
func NullString() Argument { return Argument{Type: ArgString, Null: true} }

// ObjectArg builds an object argument; a nil o is a null object.
func ObjectArg(o Object) Argument {
	if o == nil {
		return Argument{Type: ArgObject, Null: true}
	}
	return Argument{Type: ArgObject, Object: o}
}

// NewID builds a new_id placeholder. Constructor marshalling fills it with
// the freshly created object.
func NewID() Argument { return Argument{Type: ArgNewID} }

// NewIDFor builds a new_id argument referencing an existing object.
func NewIDFor(o Object) Argument { return Argument{Type: ArgNewID, Object: o} }

// Array builds an array argument; a nil b is a null array.
func Array(b []byte) Argument {
	if b == nil {
		return Argument{Type: ArgArray, Null: true}
	}
	return Argument{Type: ArgArray, Array: b}
}

// FD builds a file descriptor argument. The descriptor stays owned by the
// caller; marshalling duplicates it.
func FD(fd int) Argument { return Argument{Type: ArgFD, FD: fd} }

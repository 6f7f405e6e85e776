// File: protocol/closure.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Wire layout, 4-byte native-endian words:
//
//	word 0: sender object id
//	word 1: total message size << 16 | opcode
//	args:   int/uint/fixed/object/new_id take one word; strings and arrays
//	        are a length word followed by padded bytes; descriptors travel
//	        out of band and take no payload.

package protocol

import (
	"encoding/binary"

	"github.com/momentics/hioload-wl/api"
	"github.com/momentics/hioload-wl/internal/platform"
	"github.com/momentics/hioload-wl/pool"
)

// HeaderSize is the size of the two header words.
const HeaderSize = 8

// MaxMessageSize is the largest size the header can express.
const MaxMessageSize = 0xffff

var (
	dupFD   = platform.DupCloexec
	closeFD = platform.Close

	scratch = pool.NewBytePool(4096)
)

// Sink is the output side of a connection.
type Sink interface {
	PutFD(fd int) error
	Write(data []byte) error
	Queue(data []byte) error
}

// Closure is one typed protocol message, either about to be sent or decoded
// and waiting for dispatch. Target is the object it is addressed to once
// known.
type Closure struct {
	Message *api.Message
	Sender  uint32
	Opcode  uint16
	Args    []api.Argument
	Target  api.Object
}

// NewClosure validates args against msg's signature and builds a closure.
// Descriptor arguments are duplicated so the closure owns its copies. On
// failure every descriptor duplicated so far is closed.
func NewClosure(sender uint32, opcode uint16, msg *api.Message, args []api.Argument) (*Closure, error) {
	specs, err := ParseSignature(msg.Signature)
	if err != nil {
		return nil, err
	}
	if len(args) != len(specs) {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "argument count mismatch").
			WithContext("message", msg.Name).
			WithContext("want", len(specs)).
			WithContext("got", len(args))
	}

	c := &Closure{
		Message: msg,
		Sender:  sender,
		Opcode:  opcode,
		Args:    make([]api.Argument, 0, len(args)),
	}
	for i, spec := range specs {
		arg := args[i]
		if arg.Type != spec.Type {
			c.Destroy()
			return nil, marshalError(msg, i, "argument type mismatch").
				WithContext("want", spec.Type.String()).
				WithContext("got", arg.Type.String())
		}
		switch spec.Type {
		case api.ArgString, api.ArgArray:
			if arg.Null && !spec.Nullable {
				c.Destroy()
				return nil, marshalError(msg, i, "null value for non-nullable argument")
			}
		case api.ArgObject, api.ArgNewID:
			if arg.Null || arg.ObjectID() == 0 {
				if !spec.Nullable {
					c.Destroy()
					return nil, marshalError(msg, i, "null object for non-nullable argument")
				}
				arg.Null = true
			}
		case api.ArgFD:
			fd, err := dupFD(arg.FD)
			if err != nil {
				c.Destroy()
				return nil, marshalError(msg, i, "dup failed").WithContext("cause", err)
			}
			arg.FD = fd
		}
		c.Args = append(c.Args, arg)
	}
	return c, nil
}

func marshalError(msg *api.Message, index int, text string) *api.Error {
	return api.NewError(api.ErrCodeInvalidArgument, text).
		WithContext("message", msg.Name).
		WithContext("signature", msg.Signature).
		WithContext("arg", index)
}

// Size returns the exact serialized size.
func (c *Closure) Size() int {
	size := HeaderSize
	for i := range c.Args {
		a := &c.Args[i]
		switch a.Type {
		case api.ArgFD:
		case api.ArgString:
			size += 4
			if !a.Null {
				size += align4(len(a.Str) + 1)
			}
		case api.ArgArray:
			size += 4 + align4(len(a.Array))
		default:
			size += 4
		}
	}
	return size
}

// Serialize writes the message into buf and returns its size.
func (c *Closure) Serialize(buf []byte) (int, error) {
	size := c.Size()
	if size > MaxMessageSize {
		return 0, api.NewError(api.ErrCodeOverflow, "message too large").
			WithContext("message", c.Message.Name).
			WithContext("size", size)
	}
	if len(buf) < size {
		return 0, api.NewError(api.ErrCodeOverflow, "serialization buffer too small").
			WithContext("need", size).
			WithContext("have", len(buf))
	}

	ne := binary.NativeEndian
	p := HeaderSize
	for i := range c.Args {
		a := &c.Args[i]
		switch a.Type {
		case api.ArgInt:
			ne.PutUint32(buf[p:], uint32(a.Int))
			p += 4
		case api.ArgUint:
			ne.PutUint32(buf[p:], a.Uint)
			p += 4
		case api.ArgFixed:
			ne.PutUint32(buf[p:], uint32(a.Fixed))
			p += 4
		case api.ArgObject, api.ArgNewID:
			var id uint32
			if !a.Null {
				id = a.ObjectID()
			}
			ne.PutUint32(buf[p:], id)
			p += 4
		case api.ArgString:
			if a.Null {
				ne.PutUint32(buf[p:], 0)
				p += 4
				continue
			}
			length := len(a.Str) + 1
			ne.PutUint32(buf[p:], uint32(length))
			p += 4
			n := copy(buf[p:], a.Str)
			clear(buf[p+n : p+align4(length)])
			p += align4(length)
		case api.ArgArray:
			ne.PutUint32(buf[p:], uint32(len(a.Array)))
			p += 4
			n := copy(buf[p:], a.Array)
			clear(buf[p+n : p+align4(n)])
			p += align4(n)
		case api.ArgFD:
		}
	}

	ne.PutUint32(buf[0:], c.Sender)
	ne.PutUint32(buf[4:], uint32(size)<<16|uint32(c.Opcode))
	return size, nil
}

// Send hands the descriptors and the serialized bytes to sink, flushing
// as needed.
func (c *Closure) Send(sink Sink) error {
	return c.transmit(sink, sink.Write)
}

// Queue is Send without any flushing; the caller flushes the batch.
func (c *Closure) Queue(sink Sink) error {
	return c.transmit(sink, sink.Queue)
}

func (c *Closure) transmit(sink Sink, write func([]byte) error) error {
	for i := range c.Args {
		a := &c.Args[i]
		if a.Type != api.ArgFD || a.FD < 0 {
			continue
		}
		if err := sink.PutFD(a.FD); err != nil {
			return err
		}
		a.FD = -1
	}

	buf := scratch.GetBuffer(c.Size())
	defer scratch.PutBuffer(buf)
	n, err := c.Serialize(buf)
	if err != nil {
		return err
	}
	return write(buf[:n])
}

// ConsumeFDs marks every descriptor argument as taken by a handler so
// Destroy leaves it open.
func (c *Closure) ConsumeFDs() {
	for i := range c.Args {
		if c.Args[i].Type == api.ArgFD {
			c.Args[i].FD = -1
		}
	}
}

// Destroy closes every descriptor the closure still owns.
func (c *Closure) Destroy() {
	for i := range c.Args {
		a := &c.Args[i]
		if a.Type == api.ArgFD && a.FD >= 0 {
			_ = closeFD(a.FD)
			a.FD = -1
		}
	}
}


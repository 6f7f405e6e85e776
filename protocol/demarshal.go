// File: protocol/demarshal.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"encoding/binary"

	"github.com/momentics/hioload-wl/api"
)

// Source is the input side of a connection.
type Source interface {
	Copy(dst []byte) error
	Consume(n int)
	PopFD() (int, bool)
}

// ObjectReserver reserves ids announced by new_id arguments.
type ObjectReserver interface {
	ReserveNew(id uint32) error
}

// Header decodes the two header words.
func Header(b []byte) (sender uint32, size int, opcode uint16) {
	ne := binary.NativeEndian
	sender = ne.Uint32(b[0:])
	w := ne.Uint32(b[4:])
	return sender, int(w >> 16), uint16(w & 0xffff)
}

// Demarshal decodes one message of size bytes from src according to msg.
// The whole declared size is consumed from src even when decoding fails, so
// the stream stays aligned to message boundaries. Descriptors are popped from
// src for each fd argument. Every new_id is reserved in objects as soon as it
// is decoded.
func Demarshal(src Source, size int, objects ObjectReserver, msg *api.Message) (*Closure, error) {
	specs, err := ParseSignature(msg.Signature)
	if err != nil {
		return nil, err
	}

	if size < HeaderSize {
		if size > 0 && src.Copy(make([]byte, size)) == nil {
			src.Consume(size)
		}
		return nil, api.NewError(api.ErrCodeInvalidArgument, "message size below header size").
			WithContext("size", size)
	}

	buf := scratch.GetBuffer(size)
	defer scratch.PutBuffer(buf)
	if err := src.Copy(buf); err != nil {
		return nil, err
	}
	src.Consume(size)

	sender, _, opcode := Header(buf)
	c := &Closure{
		Message: msg,
		Sender:  sender,
		Opcode:  opcode,
		Args:    make([]api.Argument, 0, len(specs)),
	}

	ne := binary.NativeEndian
	p := HeaderSize
	short := func(i int) error {
		c.Destroy()
		return api.NewError(api.ErrCodeInvalidArgument, "message too short").
			WithContext("message", msg.Name).
			WithContext("signature", msg.Signature).
			WithContext("arg", i).
			WithContext("size", size)
	}
	for i, spec := range specs {
		arg := api.Argument{Type: spec.Type}
		if spec.Type != api.ArgFD && p+4 > size {
			return nil, short(i)
		}
		switch spec.Type {
		case api.ArgInt:
			arg.Int = int32(ne.Uint32(buf[p:]))
			p += 4
		case api.ArgUint:
			arg.Uint = ne.Uint32(buf[p:])
			p += 4
		case api.ArgFixed:
			arg.Fixed = api.Fixed(int32(ne.Uint32(buf[p:])))
			p += 4
		case api.ArgString:
			length := int(ne.Uint32(buf[p:]))
			p += 4
			if length == 0 {
				if !spec.Nullable {
					c.Destroy()
					return nil, marshalError(msg, i, "null string for non-nullable argument")
				}
				arg.Null = true
				break
			}
			if length > size-p || align4(length) > size-p {
				return nil, short(i)
			}
			raw := buf[p : p+length]
			if raw[length-1] != 0 {
				c.Destroy()
				return nil, marshalError(msg, i, "string not nul-terminated")
			}
			arg.Str = string(raw[:length-1])
			p += align4(length)
		case api.ArgObject:
			arg.ID = ne.Uint32(buf[p:])
			p += 4
			if arg.ID == 0 {
				if !spec.Nullable {
					c.Destroy()
					return nil, marshalError(msg, i, "null object for non-nullable argument")
				}
				arg.Null = true
			}
		case api.ArgNewID:
			arg.ID = ne.Uint32(buf[p:])
			p += 4
			if arg.ID == 0 {
				c.Destroy()
				return nil, marshalError(msg, i, "null new_id")
			}
			if err := objects.ReserveNew(arg.ID); err != nil {
				c.Destroy()
				return nil, marshalError(msg, i, "new_id not available").
					WithContext("id", arg.ID).
					WithContext("cause", err)
			}
		case api.ArgArray:
			length := int(ne.Uint32(buf[p:]))
			p += 4
			if length > size-p || align4(length) > size-p {
				return nil, short(i)
			}
			arg.Array = make([]byte, length)
			copy(arg.Array, buf[p:p+length])
			p += align4(length)
		case api.ArgFD:
			fd, ok := src.PopFD()
			if !ok {
				c.Destroy()
				return nil, marshalError(msg, i, "file descriptor expected")
			}
			arg.FD = fd
		}
		c.Args = append(c.Args, arg)
	}
	return c, nil
}

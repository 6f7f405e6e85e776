// File: protocol/format.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/momentics/hioload-wl/api"
)

var now = time.Now

// Format renders the closure as a protocol trace line:
//
//	[1234567.890] -> wl_display#1.get_registry(new id wl_registry#2)
//
// send marks outgoing requests; discarded marks events dropped without
// dispatch.
func (c *Closure) Format(target api.Object, send, discarded bool) string {
	var b strings.Builder

	usec := now().UnixMicro() % 10000000000
	fmt.Fprintf(&b, "[%7d.%03d] ", usec/1000, usec%1000)
	if discarded {
		b.WriteString("discarded ")
	}
	if send {
		b.WriteString(" -> ")
	}
	id := c.Sender
	var iface *api.Interface
	if target != nil {
		id = target.ID()
		iface = target.Interface()
	}
	fmt.Fprintf(&b, "%s#%d.%s(", iface.String(), id, c.Message.Name)

	for i := range c.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		a := &c.Args[i]
		switch a.Type {
		case api.ArgInt:
			fmt.Fprintf(&b, "%d", a.Int)
		case api.ArgUint:
			fmt.Fprintf(&b, "%d", a.Uint)
		case api.ArgFixed:
			fmt.Fprintf(&b, "%f", a.Fixed.Float())
		case api.ArgString:
			if a.Null {
				b.WriteString("nil")
			} else {
				fmt.Fprintf(&b, "%q", a.Str)
			}
		case api.ArgObject:
			writeObject(&b, a, i, c.Message)
		case api.ArgNewID:
			if a.Null {
				b.WriteString("nil")
				break
			}
			b.WriteString("new id ")
			writeObject(&b, a, i, c.Message)
		case api.ArgArray:
			fmt.Fprintf(&b, "array[%d]", len(a.Array))
		case api.ArgFD:
			fmt.Fprintf(&b, "fd %d", a.FD)
		}
	}
	b.WriteString(")")
	return b.String()
}

func writeObject(b *strings.Builder, a *api.Argument, i int, msg *api.Message) {
	if a.Null {
		b.WriteString("nil")
		return
	}
	if a.Object != nil {
		fmt.Fprintf(b, "%s#%d", a.Object.Interface().String(), a.Object.ID())
		return
	}
	var iface *api.Interface
	if i < len(msg.Types) {
		iface = msg.Types[i]
	}
	fmt.Fprintf(b, "%s#%d", iface.String(), a.ID)
}

// File: client/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package client implements the client side of the Wayland object protocol:
// the Display connection, proxies for remote objects, event queues and the
// reader arbitration that lets several goroutines share one socket.
//
// A typical single-threaded client:
//
//	d, err := client.Connect("")
//	registry, err := d.GetRegistry()
//	registry.AddListener([]any{onGlobal, onGlobalRemove}, state)
//	d.Roundtrip()
//	for {
//		if _, err := d.Dispatch(); err != nil {
//			break
//		}
//	}
//
// Goroutines that integrate the display into their own event loop follow
// the prepare/read protocol:
//
//	for d.PrepareReadQueue(q) != nil {
//		d.DispatchQueuePending(q)
//	}
//	d.Flush()
//	// poll d.FD() for readability
//	d.ReadEvents() // or d.CancelRead()
//	d.DispatchQueuePending(q)
package client

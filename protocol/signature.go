// File: protocol/signature.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Message signature grammar: an optional decimal since-version prefix, then
// one type code per argument, each optionally preceded by '?'.

package protocol

import (
	"github.com/momentics/hioload-wl/api"
)

// MaxArgs is the maximum number of arguments in one message.
const MaxArgs = 20

// ArgSpec is one parsed signature entry.
type ArgSpec struct {
	Type     api.ArgType
	Nullable bool
}

// ParseSignature returns the argument list of sig.
func ParseSignature(sig string) ([]ArgSpec, error) {
	specs := make([]ArgSpec, 0, len(sig))
	nullable := false
	for i := 0; i < len(sig); i++ {
		c := sig[i]
		switch {
		case c >= '0' && c <= '9':
			if len(specs) > 0 || nullable {
				return nil, api.NewError(api.ErrCodeInvalidArgument, "version digit inside signature").
					WithContext("signature", sig)
			}
		case c == '?':
			nullable = true
		case api.ArgType(c).Valid():
			specs = append(specs, ArgSpec{Type: api.ArgType(c), Nullable: nullable})
			nullable = false
		default:
			return nil, api.NewError(api.ErrCodeInvalidArgument, "unknown signature type").
				WithContext("signature", sig).
				WithContext("code", string(c))
		}
	}
	if nullable {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "dangling nullable marker").
			WithContext("signature", sig)
	}
	if len(specs) > MaxArgs {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "too many arguments").
			WithContext("signature", sig)
	}
	return specs, nil
}

// Since returns the interface version a message was introduced in.
func Since(sig string) uint32 {
	var v uint32
	for i := 0; i < len(sig) && sig[i] >= '0' && sig[i] <= '9'; i++ {
		v = v*10 + uint32(sig[i]-'0')
	}
	if v == 0 {
		return 1
	}
	return v
}

// FDCount returns the number of descriptor arguments in sig.
func FDCount(sig string) int {
	n := 0
	for i := 0; i < len(sig); i++ {
		if api.ArgType(sig[i]) == api.ArgFD {
			n++
		}
	}
	return n
}

// EventFDCounts returns, per event opcode, the descriptors the event carries.
func EventFDCounts(iface *api.Interface) []int {
	if iface == nil {
		return nil
	}
	counts := make([]int, len(iface.Events))
	for i := range iface.Events {
		counts[i] = FDCount(iface.Events[i].Signature)
	}
	return counts
}

func align4(n int) int {
	return (n + 3) &^ 3
}

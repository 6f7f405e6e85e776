// File: protocol/invoke_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-wl/api"
)

func TestInvokeConvertsArguments(t *testing.T) {
	open := fakeFDs(t)
	msg := &api.Message{Name: "ev", Signature: "ifs?soah"}
	target := &testObject{id: 3, iface: testIface}
	peer := &testObject{id: 8, iface: testIface}
	args := []api.Argument{
		api.Int32(-1),
		api.FixedArg(api.FixedFromInt(2)),
		api.String("name"),
		api.NullString(),
		api.ObjectArg(peer),
		api.Array([]byte{9}),
		api.FD(5),
	}
	c, err := NewClosure(3, 1, msg, args)
	require.NoError(t, err)

	var (
		gotData   string
		gotTarget *testObject
		gotInt    int
		gotFloat  float64
		gotStr    string
		gotOpt    *string
		gotObj    api.Object
		gotArr    []byte
		gotFD     int
	)
	handlers := []any{
		nil,
		func(data string, tgt *testObject, i int, f float64, s string, opt *string, o api.Object, a []byte, fd int) {
			gotData, gotTarget, gotInt, gotFloat, gotStr, gotOpt, gotObj, gotArr, gotFD = data, tgt, i, f, s, opt, o, a, fd
		},
	}
	require.NoError(t, c.Invoke(target, handlers, "ud"))

	assert.Equal(t, "ud", gotData)
	assert.Same(t, target, gotTarget)
	assert.Equal(t, -1, gotInt)
	assert.Equal(t, 2.0, gotFloat)
	assert.Equal(t, "name", gotStr)
	assert.Nil(t, gotOpt)
	assert.Equal(t, peer, gotObj)
	assert.Equal(t, []byte{9}, gotArr)
	assert.Equal(t, 101, gotFD)

	// the handler owns the descriptor now
	c.Destroy()
	assert.True(t, open[101])
}

func TestInvokeNilDataAndMissingHandler(t *testing.T) {
	msg := &api.Message{Name: "done", Signature: "u"}
	c, err := NewClosure(1, 0, msg, []api.Argument{api.Uint32(7)})
	require.NoError(t, err)

	var got uint32
	require.NoError(t, c.Invoke(nil, []any{func(_ any, _ api.Object, v uint32) { got = v }}, nil))
	assert.Equal(t, uint32(7), got)

	c.Opcode = 4
	assert.NoError(t, c.Invoke(nil, []any{func(any, api.Object, uint32) {}}, nil))
}

func TestInvokeRejectsMismatch(t *testing.T) {
	msg := &api.Message{Name: "done", Signature: "u"}
	c, err := NewClosure(1, 0, msg, []api.Argument{api.Uint32(7)})
	require.NoError(t, err)

	err = c.Invoke(nil, []any{func(any, any) {}}, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	err = c.Invoke(nil, []any{func(any, any, string) {}}, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)

	err = c.Invoke(nil, []any{42}, nil)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestFormat(t *testing.T) {
	old := now
	now = func() time.Time { return time.UnixMicro(1234567890) }
	t.Cleanup(func() { now = old })

	reg := &api.Interface{Name: "wl_registry"}
	msg := &api.Message{Name: "get_registry", Signature: "n", Types: []*api.Interface{reg}}
	c, err := NewClosure(1, 1, msg, []api.Argument{api.NewIDFor(&testObject{id: 2, iface: reg})})
	require.NoError(t, err)

	display := &testObject{id: 1, iface: &api.Interface{Name: "wl_display"}}
	line := c.Format(display, true, false)
	assert.Equal(t, "[1234567.890]  -> wl_display#1.get_registry(new id wl_registry#2)", line)

	ev := &api.Message{Name: "global", Signature: "usu"}
	c, err = NewClosure(2, 0, ev, []api.Argument{api.Uint32(1), api.String("wl_shm"), api.Uint32(1)})
	require.NoError(t, err)
	line = c.Format(nil, false, true)
	assert.True(t, strings.HasSuffix(line, `discarded [unknown]#2.global(1, "wl_shm", 1)`), line)
}

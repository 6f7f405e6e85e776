// File: protocol/invoke.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Late-bound handler calls. A listener is a table of funcs indexed by event
// opcode; each func takes (data, target, args...) and its parameter types are
// only known at run time, so the call is built through reflect.

package protocol

import (
	"reflect"

	"github.com/momentics/hioload-wl/api"
)

var (
	fixedType  = reflect.TypeOf(api.Fixed(0))
	bytesType  = reflect.TypeOf([]byte(nil))
	strPtrType = reflect.TypeOf((*string)(nil))
)

// Invoke calls handlers[c.Opcode] with data, target and the decoded
// arguments. A nil entry is skipped. Descriptor arguments are handed to the
// handler, which then owns them.
func (c *Closure) Invoke(target any, handlers []any, data any) error {
	if int(c.Opcode) >= len(handlers) || handlers[c.Opcode] == nil {
		return nil
	}
	fn := reflect.ValueOf(handlers[c.Opcode])
	ft := fn.Type()
	if ft.Kind() != reflect.Func {
		return api.NewError(api.ErrCodeInvalidArgument, "listener entry is not a func").
			WithContext("message", c.Message.Name).
			WithContext("type", ft.String())
	}
	if ft.NumIn() != len(c.Args)+2 || ft.IsVariadic() {
		return api.NewError(api.ErrCodeInvalidArgument, "listener arity mismatch").
			WithContext("message", c.Message.Name).
			WithContext("want", len(c.Args)+2).
			WithContext("got", ft.NumIn())
	}

	in := make([]reflect.Value, 0, ft.NumIn())
	v, err := convertValue(data, ft.In(0))
	if err != nil {
		return c.invokeError(0, err)
	}
	in = append(in, v)
	if v, err = convertValue(target, ft.In(1)); err != nil {
		return c.invokeError(1, err)
	}
	in = append(in, v)

	for i := range c.Args {
		v, err := argValue(&c.Args[i], ft.In(i+2))
		if err != nil {
			return c.invokeError(i+2, err)
		}
		in = append(in, v)
	}

	fn.Call(in)
	c.ConsumeFDs()
	return nil
}

func (c *Closure) invokeError(param int, err *api.Error) error {
	return err.WithContext("message", c.Message.Name).WithContext("param", param)
}

func argValue(a *api.Argument, t reflect.Type) (reflect.Value, *api.Error) {
	switch a.Type {
	case api.ArgInt:
		return convertNumber(reflect.ValueOf(a.Int), t)
	case api.ArgUint:
		return convertNumber(reflect.ValueOf(a.Uint), t)
	case api.ArgFD:
		return convertNumber(reflect.ValueOf(a.FD), t)
	case api.ArgFixed:
		switch {
		case t == fixedType:
			return reflect.ValueOf(a.Fixed), nil
		case t.Kind() == reflect.Float64 || t.Kind() == reflect.Float32:
			return reflect.ValueOf(a.Fixed.Float()).Convert(t), nil
		}
		return convertNumber(reflect.ValueOf(a.Fixed), t)
	case api.ArgString:
		if t == strPtrType {
			if a.Null {
				return reflect.Zero(t), nil
			}
			s := a.Str
			return reflect.ValueOf(&s), nil
		}
		if t.Kind() != reflect.String {
			return reflect.Value{}, typeError("string", t)
		}
		return reflect.ValueOf(a.Str).Convert(t), nil
	case api.ArgArray:
		if !bytesType.AssignableTo(t) && !bytesType.ConvertibleTo(t) {
			return reflect.Value{}, typeError("array", t)
		}
		return reflect.ValueOf(a.Array).Convert(t), nil
	case api.ArgObject, api.ArgNewID:
		if a.Null || a.Object == nil {
			return reflect.Zero(t), nil
		}
		return convertValue(a.Object, t)
	}
	return reflect.Value{}, typeError(a.Type.String(), t)
}

func convertNumber(v reflect.Value, t reflect.Type) (reflect.Value, *api.Error) {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v.Convert(t), nil
	case reflect.Interface:
		if v.Type().Implements(t) {
			return v.Convert(t), nil
		}
	}
	return reflect.Value{}, typeError(v.Type().String(), t)
}

// convertValue adapts an arbitrary value to t; nil becomes the zero value.
func convertValue(x any, t reflect.Type) (reflect.Value, *api.Error) {
	if x == nil {
		return reflect.Zero(t), nil
	}
	v := reflect.ValueOf(x)
	if v.Type().AssignableTo(t) {
		if t.Kind() == reflect.Interface {
			return v.Convert(t), nil
		}
		return v, nil
	}
	return reflect.Value{}, typeError(v.Type().String(), t)
}

func typeError(from string, t reflect.Type) *api.Error {
	return api.NewError(api.ErrCodeInvalidArgument, "listener parameter type mismatch").
		WithContext("from", from).
		WithContext("to", t.String())
}

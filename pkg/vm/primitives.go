// Standard-library native functions installed on the default
// prototypes: array push/pop/map/filter/reduce; string
// length/charAt/indexOf/substring/case/split/trim; a handful of
// process-level builtins (print, collect, spawn).
package vm

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/kristofer/smogvm/pkg/bytecode"
	"github.com/kristofer/smogvm/pkg/coroutine"
	"github.com/kristofer/smogvm/pkg/intern"
	"github.com/kristofer/smogvm/pkg/object"
	"github.com/kristofer/smogvm/pkg/value"
)

func native(name string, fn bytecode.NativeFunc) *bytecode.Native {
	return &bytecode.Native{Name: name, Fn: fn}
}

func installStdlib(v *VM, arrayProto, objectProto *object.Object) {
	installArrayMethods(v, arrayProto)
	installObjectMethods(v, objectProto)
	installStringMethods(v)
	installGlobalBuiltins(v)
}

// installObjectMethods installs the Object prototype's own methods —
// currently just toString, inherited by every plain object and (via
// arrayProto's own prototype chain) every array too.
func installObjectMethods(v *VM, objectProto *object.Object) {
	objectProto.Set("toString", native("toString", func(args []value.Value) (value.Value, error) {
		if _, _, err := asArray(args, 0); err == nil {
			return v.pool.InternString("[Array]"), nil
		}
		return v.pool.InternString("[Object]"), nil
	}))
}

func installArrayMethods(v *VM, arrayProto *object.Object) {
	arrayProto.Set("push", native("push", func(args []value.Value) (value.Value, error) {
		self, arr, err := asArray(args, 0)
		if err != nil {
			return nil, err
		}
		for _, a := range args[1:] {
			arr.Push(a)
		}
		return self, nil
	}))
	arrayProto.Set("pop", native("pop", func(args []value.Value) (value.Value, error) {
		_, arr, err := asArray(args, 0)
		if err != nil {
			return nil, err
		}
		val, ok := arr.Pop()
		if !ok {
			return value.Nil{}, nil
		}
		return val, nil
	}))
	arrayProto.Set("map", native("map", func(args []value.Value) (value.Value, error) {
		self, arr, err := asArray(args, 0)
		if err != nil {
			return nil, err
		}
		fn, err := asCallable(args, 1)
		if err != nil {
			return nil, err
		}
		out := object.NewArray(self.Prototype)
		for _, elem := range arr.Elements() {
			result, err := v.callNative(fn, []value.Value{elem})
			if err != nil {
				return nil, err
			}
			out.Push(result)
		}
		return out, nil
	}))
	arrayProto.Set("filter", native("filter", func(args []value.Value) (value.Value, error) {
		self, arr, err := asArray(args, 0)
		if err != nil {
			return nil, err
		}
		fn, err := asCallable(args, 1)
		if err != nil {
			return nil, err
		}
		out := object.NewArray(self.Prototype)
		for _, elem := range arr.Elements() {
			result, err := v.callNative(fn, []value.Value{elem})
			if err != nil {
				return nil, err
			}
			if result.Truthy() {
				out.Push(elem)
			}
		}
		return out, nil
	}))
	arrayProto.Set("get", native("get", func(args []value.Value) (value.Value, error) {
		_, arr, err := asArray(args, 0)
		if err != nil {
			return nil, err
		}
		idx, err := asInt(args, 1)
		if err != nil {
			return nil, err
		}
		val, ok := arr.At(idx)
		if !ok {
			return value.Nil{}, nil
		}
		return val, nil
	}))
	arrayProto.Set("set", native("set", func(args []value.Value) (value.Value, error) {
		self, arr, err := asArray(args, 0)
		if err != nil {
			return nil, err
		}
		idx, err := asInt(args, 1)
		if err != nil {
			return nil, err
		}
		if len(args) < 3 {
			return nil, errors.New("set requires a value argument")
		}
		arr.SetIndex(idx, args[2])
		return self, nil
	}))
	arrayProto.Set("reduce", native("reduce", func(args []value.Value) (value.Value, error) {
		_, arr, err := asArray(args, 0)
		if err != nil {
			return nil, err
		}
		fn, err := asCallable(args, 1)
		if err != nil {
			return nil, err
		}
		if len(args) < 3 {
			return nil, errors.New("reduce requires an initial accumulator")
		}
		acc := args[2]
		for _, elem := range arr.Elements() {
			acc, err = v.callNative(fn, []value.Value{acc, elem})
			if err != nil {
				return nil, err
			}
		}
		return acc, nil
	}))
}

func installStringMethods(v *VM) {
	proto := v.defaultPrototypes[value.KindString]
	proto.Set("length", native("length", func(args []value.Value) (value.Value, error) {
		s, err := asString(args, 0)
		if err != nil {
			return nil, err
		}
		return value.Integer(len(s)), nil
	}))
	proto.Set("charAt", native("charAt", func(args []value.Value) (value.Value, error) {
		s, err := asString(args, 0)
		if err != nil {
			return nil, err
		}
		idx, err := asInt(args, 1)
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(s) {
			return v.pool.InternString(""), nil
		}
		return v.pool.InternString(string(s[idx])), nil
	}))
	proto.Set("indexOf", native("indexOf", func(args []value.Value) (value.Value, error) {
		s, err := asString(args, 0)
		if err != nil {
			return nil, err
		}
		needle, err := asString(args, 1)
		if err != nil {
			return nil, err
		}
		return value.Integer(strings.Index(s, needle)), nil
	}))
	proto.Set("substring", native("substring", func(args []value.Value) (value.Value, error) {
		s, err := asString(args, 0)
		if err != nil {
			return nil, err
		}
		start, err := asInt(args, 1)
		if err != nil {
			return nil, err
		}
		end := len(s)
		if len(args) > 2 {
			end, err = asInt(args, 2)
			if err != nil {
				return nil, err
			}
		}
		if start < 0 {
			start = 0
		}
		if end > len(s) {
			end = len(s)
		}
		if start > end {
			start = end
		}
		return v.pool.InternString(s[start:end]), nil
	}))
	proto.Set("toUpperCase", stringTransform(v, strings.ToUpper))
	proto.Set("toLowerCase", stringTransform(v, strings.ToLower))
	proto.Set("trim", stringTransform(v, strings.TrimSpace))
	proto.Set("split", native("split", func(args []value.Value) (value.Value, error) {
		s, err := asString(args, 0)
		if err != nil {
			return nil, err
		}
		sep, err := asString(args, 1)
		if err != nil {
			return nil, err
		}
		out := object.NewArray(v.defaultPrototypes[value.KindObject])
		for _, part := range strings.Split(s, sep) {
			out.Push(v.pool.InternString(part))
		}
		return out, nil
	}))
}

func stringTransform(v *VM, f func(string) string) *bytecode.Native {
	return native("transform", func(args []value.Value) (value.Value, error) {
		s, err := asString(args, 0)
		if err != nil {
			return nil, err
		}
		return v.pool.InternString(f(s)), nil
	})
}

func installGlobalBuiltins(v *VM) {
	v.DefineGlobal("print", native("print", func(args []value.Value) (value.Value, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.GoString()
		}
		v.print(strings.Join(parts, " "))
		return value.Nil{}, nil
	}))
	v.DefineGlobal("collect", native("collect", func(args []value.Value) (value.Value, error) {
		v.gc.Collect()
		return value.Nil{}, nil
	}))
	v.DefineGlobal("spawn", native("spawn", func(args []value.Value) (value.Value, error) {
		fn, err := asCallable(args, 0)
		if err != nil {
			return nil, err
		}
		c := coroutine.NewCoroutine("coroutine")
		v.scheduled[c] = fn
		v.executor.Spawn(c)
		return c.Promise, nil
	}))
}

func asArray(args []value.Value, idx int) (*object.Object, *object.Object, error) {
	if idx >= len(args) {
		return nil, nil, errors.New("missing receiver argument")
	}
	obj, ok := args[idx].(*object.Object)
	if !ok || !obj.IsArray {
		return nil, nil, errors.New("receiver is not an array")
	}
	return obj, obj, nil
}

func asString(args []value.Value, idx int) (string, error) {
	if idx >= len(args) {
		return "", errors.New("missing string argument")
	}
	e, ok := args[idx].(*intern.Entry)
	if !ok {
		return "", errors.Errorf("expected string, got %s", args[idx].Kind())
	}
	return e.String(), nil
}

func asInt(args []value.Value, idx int) (int, error) {
	if idx >= len(args) {
		return 0, errors.New("missing integer argument")
	}
	if !value.IsNumeric(args[idx]) {
		return 0, errors.Errorf("expected numeric, got %s", args[idx].Kind())
	}
	return int(value.AsFloat64(args[idx])), nil
}

func asCallable(args []value.Value, idx int) (value.Value, error) {
	if idx >= len(args) {
		return nil, errors.New("missing callback argument")
	}
	switch args[idx].(type) {
	case *bytecode.Closure, *bytecode.Native:
		return args[idx], nil
	default:
		return nil, errors.Errorf("expected callable, got %s", args[idx].Kind())
	}
}

// callNative invokes a closure or native value outside the bytecode
// dispatch loop (from within another native), reusing the VM's own
// call machinery so closures invoked from map/filter/reduce still get
// proper frames, upvalue handling, and GC coordination.
func (v *VM) callNative(callee value.Value, args []value.Value) (value.Value, error) {
	base := v.sp
	depthBeforeCall := v.frameCount
	v.push(callee)
	for _, a := range args {
		v.push(a)
	}
	if err := v.callValue(callee, len(args)); err != nil {
		v.sp = base
		return nil, err
	}
	if _, ok := callee.(*bytecode.Closure); ok {
		if err := v.runTo(depthBeforeCall); err != nil {
			v.sp = base
			return nil, err
		}
	}
	result := v.pop()
	return result, nil
}

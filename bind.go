package strata

import (
	"errors"
	"fmt"
	"reflect"

	pkgerrors "github.com/pkg/errors"
)

// invoke binds arguments to the callable and calls it. Positional
// arguments fill parameters left to right; named arguments fill
// parameters and In fields by name; everything else is auto-wired.
func (c *Callable) invoke(rs *resolution, inj *Injector, args []any) (any, error) {
	sig, err := c.signature()
	if err != nil {
		return nil, configError("invoke", fmt.Sprintf("analysing %s", c), err)
	}

	pos, kw := splitArgs(args)

	if sig.structType != nil {
		return c.construct(rs, inj, sig, pos, kw)
	}

	in, err := c.bind(rs, inj, sig, pos, kw)
	if err != nil {
		return nil, err
	}

	var out []reflect.Value
	if sig.variadic {
		out = c.fn.CallSlice(in)
	} else {
		out = c.fn.Call(in)
	}

	return c.results(sig, out)
}

func (c *Callable) bind(rs *resolution, inj *Injector, sig *signature, pos []any, kw Kwargs) ([]reflect.Value, error) {
	fixed := len(sig.params)
	if sig.variadic {
		fixed--
	}

	if !sig.variadic && len(pos) > fixed {
		return nil, errTooManyArgs(c.String(), len(pos), fixed)
	}

	in := make([]reflect.Value, len(sig.params))

	for i := range sig.params {
		p := &sig.params[i]

		var (
			v   reflect.Value
			err error
		)

		named, hasNamed := kw[p.name]
		hasNamed = hasNamed && p.name != ""

		switch {
		case p.kind == paramVariadic:
			v, err = c.bindVariadic(rs, inj, p, pos[min(fixed, len(pos)):])
		case i < len(pos):
			v, err = convertValue(pos[i], p.typ, c.label(p.label))
		case hasNamed:
			v, err = convertValue(named, p.typ, c.label(p.label))
		case p.kind == paramIn:
			v, err = c.bindStruct(rs, inj, p.typ, p.fields, kw)
		case p.kind == paramArg:
			err = errMissingArgument(p.label, c.String())
		default:
			v, err = c.resolveDep(rs, inj, p.dep, p.typ, p.label)
		}

		if err != nil {
			return nil, err
		}

		in[i] = v
	}

	return in, nil
}

// bindVariadic builds the variadic slice: collected values first, then
// extra positional arguments.
func (c *Callable) bindVariadic(rs *resolution, inj *Injector, p *paramInfo, extra []any) (reflect.Value, error) {
	elem := p.typ.Elem()
	out := reflect.MakeSlice(p.typ, 0, len(extra))

	if p.collect != nil {
		for i, k := range p.collect.keys {
			v, err := inj.make(rs, k, p.collect.tokens[i], nil)
			if err != nil {
				if isMissing(err, k) {
					continue
				}

				return reflect.Value{}, err
			}

			rv, err := convertValue(v, elem, c.label(p.label))
			if err != nil {
				return reflect.Value{}, err
			}

			out = reflect.Append(out, rv)
		}
	}

	for _, a := range extra {
		rv, err := convertValue(a, elem, c.label(p.label))
		if err != nil {
			return reflect.Value{}, err
		}

		out = reflect.Append(out, rv)
	}

	return out, nil
}

// bindStruct fills an In parameter struct.
func (c *Callable) bindStruct(rs *resolution, inj *Injector, t reflect.Type, fields []fieldInfo, kw Kwargs) (reflect.Value, error) {
	isPtr := t.Kind() == reflect.Ptr

	st := t
	if isPtr {
		st = t.Elem()
	}

	ptr := reflect.New(st)
	if err := c.fill(rs, inj, ptr.Elem(), fields, kw); err != nil {
		return reflect.Value{}, err
	}

	if isPtr {
		return ptr, nil
	}

	return ptr.Elem(), nil
}

// construct allocates the struct type and injects its tagged fields.
func (c *Callable) construct(rs *resolution, inj *Injector, sig *signature, pos []any, kw Kwargs) (any, error) {
	if len(pos) > 0 {
		return nil, errTooManyArgs(c.String(), len(pos), 0)
	}

	ptr := reflect.New(sig.structType)
	if err := c.fill(rs, inj, ptr.Elem(), sig.fields, kw); err != nil {
		return nil, err
	}

	if sig.structPtr {
		return ptr.Interface(), nil
	}

	return ptr.Elem().Interface(), nil
}

func (c *Callable) fill(rs *resolution, inj *Injector, sv reflect.Value, fields []fieldInfo, kw Kwargs) error {
	for i := range fields {
		f := &fields[i]
		label := fmt.Sprintf("%s (%s)", f.name, f.typ)

		var (
			v   reflect.Value
			err error
		)

		if named, ok := kw[f.name]; ok {
			v, err = convertValue(named, f.typ, c.label(label))
		} else {
			v, err = c.resolveDep(rs, inj, &f.dep, f.typ, label)
		}

		if err != nil {
			return err
		}

		sv.Field(f.index).Set(v)
	}

	return nil
}

// resolveDep tries each candidate token in order. A candidate that has
// no provider falls through to the next; any other failure is returned.
func (c *Callable) resolveDep(rs *resolution, inj *Injector, d *dependency, typ reflect.Type, label string) (reflect.Value, error) {
	target := inj

	if d.scope != "" {
		at, ok := inj.At(d.scope)
		if !ok {
			if d.hasDefault {
				return convertValue(d.def(), typ, c.label(label))
			}

			return reflect.Value{}, &InjectorKeyError{
				Key:      d.keys[0],
				Scope:    d.scope,
				Level:    inj.level,
				Injector: inj.id,
				Param:    label,
				Callable: c.String(),
				Cause:    fmt.Errorf("no active injector for scope %q", d.scope),
			}
		}

		target = at
	}

	for i, k := range d.keys {
		v, err := target.make(rs, k, d.tokens[i], nil)
		if err == nil {
			return convertValue(v, typ, c.label(label))
		}

		if !isMissing(err, k) {
			return reflect.Value{}, err
		}
	}

	if d.hasDefault {
		return convertValue(d.def(), typ, c.label(label))
	}

	return reflect.Value{}, &InjectorKeyError{
		Key:      d.keys[0],
		Scope:    target.scope.Name(),
		Level:    target.level,
		Injector: target.id,
		Param:    label,
		Callable: c.String(),
	}
}

func (c *Callable) label(param string) string {
	return fmt.Sprintf("parameter %s of %s", param, c)
}

// results unpacks (T), (error) or (T, error).
func (c *Callable) results(sig *signature, out []reflect.Value) (any, error) {
	if sig.hasError {
		last := out[len(out)-1]
		out = out[:len(out)-1]

		if !last.IsNil() {
			return nil, pkgerrors.Wrapf(last.Interface().(error), "calling %s", c)
		}
	}

	if len(out) == 0 {
		return nil, nil
	}

	return out[0].Interface(), nil
}

// isMissing reports whether err says key itself has no provider, as
// opposed to a failure further down its dependency tree.
func isMissing(err error, key Key) bool {
	var ke *InjectorKeyError

	return errors.As(err, &ke) && ke.Key == key && ke.Param == ""
}

// convertValue adapts v to t. nil becomes the zero value.
func convertValue(v any, t reflect.Type, what string) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv, nil
	}

	if rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t) {
		return rv.Convert(t), nil
	}

	return reflect.Value{}, errTypeMismatch(what, v, t)
}

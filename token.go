package strata

import (
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

type keyKind uint8

const (
	kindName keyKind = iota + 1
	kindTypedName
	kindType
	kindFunc
	kindCallable
	kindValue
	kindTuple
)

// Key is the normalized, comparable identity of an injectable token.
// Use KeyOf to normalize arbitrary tokens.
type Key struct {
	kind keyKind
	v    any
	args *paramList
}

type funcID struct {
	typ reflect.Type
	ptr uintptr
}

type typedName struct {
	name string
	typ  reflect.Type
}

// paramList is an interned, immutable list of keys. Interning makes
// pointer equality equivalent to element-wise equality.
type paramList struct {
	parent *paramList
	key    Key
	n      int
}

type internKey struct {
	parent *paramList
	key    Key
}

var interned sync.Map // internKey -> *paramList

func intern(parent *paramList, k Key) *paramList {
	ik := internKey{parent: parent, key: k}
	if v, ok := interned.Load(ik); ok {
		return v.(*paramList)
	}

	n := 1
	if parent != nil {
		n = parent.n + 1
	}

	v, _ := interned.LoadOrStore(ik, &paramList{parent: parent, key: k, n: n})

	return v.(*paramList)
}

func internAll(keys []Key) *paramList {
	var list *paramList
	for _, k := range keys {
		list = intern(list, k)
	}

	return list
}

func (p *paramList) keys() []Key {
	if p == nil {
		return nil
	}

	out := make([]Key, p.n)
	for cur := p; cur != nil; cur = cur.parent {
		out[cur.n-1] = cur.key
	}

	return out
}

// Injectable lets any type act as a token by supplying its own identity.
type Injectable interface {
	InjectionKey() any
}

var injectableTypes sync.Map // reflect.Type -> struct{}

// RegisterInjectableType marks values of t as valid tokens. t must be
// comparable.
func RegisterInjectableType(t reflect.Type) error {
	if t == nil || !t.Comparable() {
		return configError("register injectable type", fmt.Sprintf("type %v is not comparable", t), nil)
	}

	injectableTypes.Store(t, struct{}{})

	return nil
}

// KeyOf normalizes a token. Accepted tokens are non-empty strings,
// reflect.Type values, functions, *Callable, Key, values implementing
// Injectable, and values of types added with RegisterInjectableType.
//
// Functions are identified by type and code pointer. Top-level functions
// and method values of one method have a stable identity; closures do
// not, since whether two closures share code depends on inlining. Wrap a
// closure with Annotate and use the returned *Callable as the token to
// give it one.
func KeyOf(token any) (Key, error) {
	return keyOf(token, 0)
}

func keyOf(token any, depth int) (Key, error) {
	if depth > 8 {
		return Key{}, configError("token", fmt.Sprintf("%T: InjectionKey nests too deeply", token), nil)
	}

	switch t := token.(type) {
	case nil:
		return Key{}, configError("token", "token cannot be nil", nil)
	case Key:
		if t.IsZero() {
			return Key{}, configError("token", "zero key", nil)
		}

		return t, nil
	case string:
		if t == "" {
			return Key{}, configError("token", "token name cannot be empty", nil)
		}

		return Key{kind: kindName, v: t}, nil
	case reflect.Type:
		if t == nil {
			return Key{}, configError("token", "nil type", nil)
		}

		return Key{kind: kindType, v: t}, nil
	case *Callable:
		if t == nil {
			return Key{}, configError("token", "nil callable", nil)
		}

		return Key{kind: kindCallable, v: t}, nil
	case Injectable:
		return keyOf(t.InjectionKey(), depth+1)
	}

	rv := reflect.ValueOf(token)
	if rv.Kind() == reflect.Func {
		if rv.IsNil() {
			return Key{}, configError("token", "nil function", nil)
		}

		return Key{kind: kindFunc, v: funcID{typ: rv.Type(), ptr: rv.Pointer()}}, nil
	}

	if _, ok := injectableTypes.Load(rv.Type()); ok {
		return Key{kind: kindValue, v: token}, nil
	}

	return Key{}, configError("token", fmt.Sprintf("%T is not injectable", token), nil)
}

// MustKey is like KeyOf but panics on an invalid token.
func MustKey(token any) Key {
	k, err := KeyOf(token)
	if err != nil {
		panic(err)
	}

	return k
}

// Name returns the key for a named token.
func Name(name string) Key {
	return MustKey(name)
}

// TypeOf returns the reflect.Type of T, including interface types.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// TypeKey returns the key for the type T.
func TypeKey[T any]() Key {
	return Key{kind: kindType, v: TypeOf[T]()}
}

// Tuple returns a key composed of several tokens. Panics on invalid parts.
func Tuple(parts ...any) Key {
	keys := make([]Key, len(parts))
	for i, p := range parts {
		keys[i] = MustKey(p)
	}

	return Key{kind: kindTuple, args: internAll(keys)}
}

// Generic returns base parameterized by params. The result is distinct
// from base; providers registered for base may specialize it on demand.
// Panics on invalid tokens.
func Generic(base any, params ...any) Key {
	k := MustKey(base)

	keys := make([]Key, len(params))
	for i, p := range params {
		keys[i] = MustKey(p)
	}

	return k.With(keys...)
}

// With returns k parameterized by params, appended to any existing parameters.
func (k Key) With(params ...Key) Key {
	out := k
	for _, p := range params {
		out.args = intern(out.args, p)
	}

	return out
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool {
	return k.kind == 0
}

// IsParameterized reports whether k carries type parameters.
func (k Key) IsParameterized() bool {
	return k.kind != kindTuple && k.args != nil
}

// Base strips the parameters from a parameterized key.
func (k Key) Base() Key {
	if k.kind == kindTuple {
		return k
	}

	return Key{kind: k.kind, v: k.v}
}

// Params returns the parameters of a parameterized key, or the parts of a tuple.
func (k Key) Params() []Key {
	return k.args.keys()
}

// Type returns the type behind a type key.
func (k Key) Type() (reflect.Type, bool) {
	t, ok := k.v.(reflect.Type)

	return t, ok && k.kind == kindType
}

// Name returns the name behind a named token.
func (k Key) Name() (string, bool) {
	switch k.kind {
	case kindName:
		return k.v.(string), true
	case kindTypedName:
		return k.v.(typedName).name, true
	}

	return "", false
}

// String renders the key for diagnostics.
func (k Key) String() string {
	var base string

	switch k.kind {
	case kindName:
		base = strconv.Quote(k.v.(string))
	case kindTypedName:
		tn := k.v.(typedName)
		base = fmt.Sprintf("%q(%s)", tn.name, tn.typ)
	case kindType:
		base = k.v.(reflect.Type).String()
	case kindFunc:
		base = funcName(k.v.(funcID).ptr)
	case kindCallable:
		base = k.v.(*Callable).String()
	case kindValue:
		base = fmt.Sprintf("%v", k.v)
	case kindTuple:
		return "(" + joinKeys(k.args.keys()) + ")"
	default:
		return "<nil>"
	}

	if k.args == nil {
		return base
	}

	return base + "[" + joinKeys(k.args.keys()) + "]"
}

func joinKeys(keys []Key) string {
	parts := make([]string, len(keys))
	for i, p := range keys {
		parts[i] = p.String()
	}

	return strings.Join(parts, ", ")
}

func funcName(ptr uintptr) string {
	if fn := runtime.FuncForPC(ptr); fn != nil {
		return fn.Name()
	}

	return fmt.Sprintf("func@%#x", ptr)
}

// Token is a typed named token. The type parameter is part of the identity,
// so Token[int]("x") and Token[string]("x") are different keys.
//
// Example:
//
//	var DatabaseToken = NewToken[*Database]("database")
//	c.RegisterFactory(DatabaseToken, NewDatabase, Cached())
//	db, err := Make[*Database](ctx, c, DatabaseToken)
type Token[T any] struct {
	name string
}

// NewToken creates a new typed token.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name returns the string name of the token.
func (t Token[T]) Name() string {
	return t.name
}

// InjectionKey implements Injectable.
func (t Token[T]) InjectionKey() any {
	return Key{kind: kindTypedName, v: typedName{name: t.name, typ: TypeOf[T]()}}
}

// Key returns the normalized key of the token.
func (t Token[T]) Key() Key {
	return t.InjectionKey().(Key)
}

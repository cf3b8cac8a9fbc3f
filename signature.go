package strata

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// In is a marker type that should be embedded in structs to indicate
// they are parameter objects. Every exported field is a dependency.
//
// Example:
//
//	type HandlerParams struct {
//	    strata.In
//
//	    DB     *Database
//	    Cache  Cache      `inject:"cache.redis,cache"`
//	    Tracer *Tracer    `optional:"true"`
//	    User   *User      `scope:"request"`
//	}
type In struct{}

var (
	inType    = reflect.TypeOf(In{})
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

type paramKind uint8

const (
	paramDep paramKind = iota
	paramArg
	paramIn
	paramVariadic
)

// dependency is an analysed Dependency annotation.
type dependency struct {
	tokens     []any
	keys       []Key
	scope      string
	def        func() any
	hasDefault bool
}

// paramInfo describes a callable parameter
type paramInfo struct {
	index   int
	typ     reflect.Type
	kind    paramKind
	label   string
	name    string      // Kwargs name, if any
	dep     *dependency // paramDep
	collect *dependency // paramVariadic with Collect
	fields  []fieldInfo // paramIn
}

// fieldInfo describes an injected struct field
type fieldInfo struct {
	index int
	name  string
	typ   reflect.Type
	dep   dependency
}

// signature is the analysed shape of a callable.
type signature struct {
	params   []paramInfo
	variadic bool
	hasValue bool
	hasError bool

	structType reflect.Type // set for Construct callables
	structPtr  bool
	fields     []fieldInfo
}

// Callable is a function or struct constructor prepared for auto-wiring.
// Signatures are analysed once per callable, and once per function type
// for unannotated functions.
type Callable struct {
	fn          reflect.Value
	name        string
	annotations []any
	structType  reflect.Type
	structPtr   bool

	once sync.Once
	sig  *signature
	err  error
}

// Annotate attaches positional annotations to fn: a Dependency, an
// Argument, a Collection, or nil for the default treatment. Unannotated
// parameters depend on their own type; a struct parameter embedding In is
// expanded field by field. Invalid annotations are reported when the
// callable is registered or invoked.
func Annotate(fn any, params ...any) *Callable {
	c := &Callable{annotations: params}

	rv := reflect.ValueOf(fn)
	if fn == nil || rv.Kind() != reflect.Func || rv.IsNil() {
		c.name = fmt.Sprintf("%T", fn)
		c.err = fmt.Errorf("annotated value %T is not a function", fn)

		return c
	}

	c.fn = rv
	c.name = funcName(rv.Pointer())

	return c
}

var constructors sync.Map // reflect.Type -> *Callable

// Construct returns a callable that allocates T and fills its fields
// tagged `inject`. T must be a struct or a pointer to a struct.
func Construct[T any]() *Callable {
	return constructFor(TypeOf[T]())
}

func constructFor(t reflect.Type) *Callable {
	if v, ok := constructors.Load(t); ok {
		return v.(*Callable)
	}

	c := &Callable{name: "construct " + t.String()}

	st := t
	if st.Kind() == reflect.Ptr {
		st = st.Elem()
		c.structPtr = true
	}

	if st.Kind() != reflect.Struct {
		c.err = fmt.Errorf("%s is not a struct or pointer to struct", t)
	}

	c.structType = st

	v, _ := constructors.LoadOrStore(t, c)

	return v.(*Callable)
}

// callableOf wraps a function or returns an existing *Callable.
func callableOf(v any) (*Callable, error) {
	if c, ok := v.(*Callable); ok {
		if c == nil {
			return nil, fmt.Errorf("nil callable")
		}

		return c, nil
	}

	rv := reflect.ValueOf(v)
	if v == nil || rv.Kind() != reflect.Func || rv.IsNil() {
		return nil, fmt.Errorf("%T is not callable", v)
	}

	return &Callable{fn: rv, name: funcName(rv.Pointer())}, nil
}

type sigEntry struct {
	sig *signature
	err error
}

var funcSignatures sync.Map // reflect.Type -> *sigEntry

// plainSignature analyses an unannotated function type once per type.
func plainSignature(t reflect.Type) (*signature, error) {
	if v, ok := funcSignatures.Load(t); ok {
		e := v.(*sigEntry)

		return e.sig, e.err
	}

	sig, err := analyzeFunc(t, nil)
	v, _ := funcSignatures.LoadOrStore(t, &sigEntry{sig: sig, err: err})
	e := v.(*sigEntry)

	return e.sig, e.err
}

// constructible returns a factory concrete for tokens that can be built
// without registration: functions, callables, and struct types.
func constructible(token any) any {
	switch t := token.(type) {
	case *Callable:
		return t
	case reflect.Type:
		st := t
		if st.Kind() == reflect.Ptr {
			st = st.Elem()
		}

		if st.Kind() == reflect.Struct {
			return constructFor(t)
		}

		return nil
	}

	if token != nil && reflect.TypeOf(token).Kind() == reflect.Func {
		return token
	}

	return nil
}

// String returns the callable's name for diagnostics.
func (c *Callable) String() string {
	return c.name
}

// signature analyses the callable once.
func (c *Callable) signature() (*signature, error) {
	c.once.Do(func() {
		if c.err != nil {
			return
		}

		switch {
		case c.structType != nil:
			c.sig, c.err = analyzeStruct(c.structType, c.structPtr)
		case len(c.annotations) == 0:
			c.sig, c.err = plainSignature(c.fn.Type())
		default:
			c.sig, c.err = analyzeFunc(c.fn.Type(), c.annotations)
		}
	})

	return c.sig, c.err
}

// factorySignature is signature plus the requirement that the callable
// produces a value.
func (c *Callable) factorySignature() (*signature, error) {
	sig, err := c.signature()
	if err != nil {
		return nil, err
	}

	if !sig.hasValue {
		return nil, fmt.Errorf("%s must return T or (T, error)", c)
	}

	return sig, nil
}

func analyzeFunc(fnType reflect.Type, annotations []any) (*signature, error) {
	if len(annotations) > fnType.NumIn() {
		return nil, fmt.Errorf("%d annotations for %d parameters", len(annotations), fnType.NumIn())
	}

	sig := &signature{variadic: fnType.IsVariadic()}

	switch fnType.NumOut() {
	case 0:
	case 1:
		if fnType.Out(0) == errorType {
			sig.hasError = true
		} else {
			sig.hasValue = true
		}
	case 2:
		if !fnType.Out(1).Implements(errorType) {
			return nil, fmt.Errorf("second return value must implement error")
		}

		// Success is reported as a nil error, so the type must be nilable.
		if k := fnType.Out(1).Kind(); k != reflect.Interface && k != reflect.Ptr {
			return nil, fmt.Errorf("second return value %s must be an interface or pointer type", fnType.Out(1))
		}

		sig.hasValue, sig.hasError = true, true
	default:
		return nil, fmt.Errorf("callable must return at most (T, error)")
	}

	for i := 0; i < fnType.NumIn(); i++ {
		var ann any
		if i < len(annotations) {
			ann = annotations[i]
		}

		variadic := sig.variadic && i == fnType.NumIn()-1

		param, err := analyzeParam(fnType.In(i), i, ann, variadic)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}

		sig.params = append(sig.params, param)
	}

	return sig, nil
}

// analyzeParam analyzes a single parameter and its annotation
func analyzeParam(t reflect.Type, index int, ann any, variadic bool) (paramInfo, error) {
	param := paramInfo{
		index: index,
		typ:   t,
		label: fmt.Sprintf("#%d (%s)", index, t),
	}

	if variadic {
		param.kind = paramVariadic

		switch a := ann.(type) {
		case nil:
		case Collection:
			dep, err := analyzeDependency(Dependency{tokens: a.tokens}, t.Elem())
			if err != nil {
				return param, err
			}

			param.collect = &dep
		default:
			return param, fmt.Errorf("variadic parameter accepts only a Collection annotation, got %T", ann)
		}

		return param, nil
	}

	switch a := ann.(type) {
	case Dependency:
		dep, err := analyzeDependency(a, t)
		if err != nil {
			return param, err
		}

		param.kind = paramDep
		param.dep = &dep
		param.name = a.name

	case Argument:
		param.kind = paramArg
		param.name = a.name

	case nil:
		if isInStruct(t) {
			fields, err := expandInStruct(t)
			if err != nil {
				return param, err
			}

			param.kind = paramIn
			param.fields = fields

			return param, nil
		}

		dep, _ := analyzeDependency(Dependency{}, t)
		param.kind = paramDep
		param.dep = &dep

	default:
		return param, fmt.Errorf("unsupported annotation %T", ann)
	}

	if param.name != "" {
		param.label = fmt.Sprintf("%q (%s)", param.name, t)
	}

	return param, nil
}

func analyzeDependency(d Dependency, t reflect.Type) (dependency, error) {
	tokens := d.tokens
	if len(tokens) == 0 {
		tokens = []any{t}
	}

	dep := dependency{
		tokens:     tokens,
		keys:       make([]Key, len(tokens)),
		scope:      d.scope,
		def:        d.def,
		hasDefault: d.hasDefault,
	}

	for i, tok := range tokens {
		k, err := KeyOf(tok)
		if err != nil {
			return dep, err
		}

		dep.keys[i] = k
	}

	return dep, nil
}

// isInStruct checks if a type embeds strata.In
func isInStruct(t reflect.Type) bool {
	// Handle pointer types
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct {
		return false
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type == inType {
			return true
		}
		// Check embedded structs recursively
		if field.Anonymous && isInStruct(field.Type) {
			return true
		}
	}

	return false
}

// expandInStruct expands an In struct into its field dependencies
func expandInStruct(t reflect.Type) ([]fieldInfo, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	var fields []fieldInfo

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// Skip the embedded In marker
		if field.Anonymous && (field.Type == inType || isInStruct(field.Type)) {
			continue
		}

		// Skip unexported fields
		if !field.IsExported() {
			continue
		}

		f, err := analyzeField(field, i)
		if err != nil {
			return nil, err
		}

		fields = append(fields, f)
	}

	return fields, nil
}

// analyzeStruct collects the fields of a constructed struct that carry
// an inject tag.
func analyzeStruct(t reflect.Type, ptr bool) (*signature, error) {
	sig := &signature{hasValue: true, structType: t, structPtr: ptr}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if _, ok := field.Tag.Lookup("inject"); !ok {
			continue
		}

		if !field.IsExported() {
			return nil, fmt.Errorf("field %s.%s is tagged inject but unexported", t, field.Name)
		}

		f, err := analyzeField(field, i)
		if err != nil {
			return nil, err
		}

		sig.fields = append(sig.fields, f)
	}

	return sig, nil
}

// analyzeField parses the inject, optional and scope tags of a field
func analyzeField(field reflect.StructField, index int) (fieldInfo, error) {
	var d Dependency

	if tag := field.Tag.Get("inject"); tag != "" {
		for _, name := range strings.Split(tag, ",") {
			if name = strings.TrimSpace(name); name != "" {
				d.tokens = append(d.tokens, name)
			}
		}
	}

	if tag := field.Tag.Get("optional"); strings.ToLower(tag) == "true" {
		d = d.Optional()
	}

	if tag := field.Tag.Get("scope"); tag != "" {
		d.scope = tag
	}

	dep, err := analyzeDependency(d, field.Type)
	if err != nil {
		return fieldInfo{}, fmt.Errorf("field %s: %w", field.Name, err)
	}

	return fieldInfo{index: index, name: field.Name, typ: field.Type, dep: dep}, nil
}

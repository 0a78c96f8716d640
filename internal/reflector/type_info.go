// Package reflector names Go types for logs, metrics and event envelopes.
// Results are cached per reflect.Type.
package reflector

import (
	"reflect"
	"sync"
)

// Nil is the name reported for a nil interface value.
const Nil = "<nil>"

// TypeName holds both spellings of a type name. Pointers are unwrapped.
type TypeName struct {
	// Qualified is "pkg/path.Name", or the plain name for predeclared and
	// unnamed types.
	Qualified string
	// Short is the bare name without the package path.
	Short string
}

var cache sync.Map // reflect.Type -> TypeName

func NameOf(x any) TypeName {
	return NameForType(reflect.TypeOf(x))
}

func NameFor[T any]() TypeName {
	return NameForType(reflect.TypeFor[T]())
}

func NameForType(t reflect.Type) TypeName {
	if t == nil {
		return TypeName{Qualified: Nil, Short: Nil}
	}
	if v, ok := cache.Load(t); ok {
		return v.(TypeName)
	}

	e := t
	if e.Kind() == reflect.Pointer {
		e = e.Elem()
	}
	tn := TypeName{Qualified: e.String(), Short: e.String()}
	if e.Name() != "" {
		tn.Short = e.Name()
		if e.PkgPath() != "" {
			tn.Qualified = e.PkgPath() + "." + e.Name()
		} else {
			tn.Qualified = e.Name()
		}
	}

	v, _ := cache.LoadOrStore(t, tn)
	return v.(TypeName)
}

package reflectx

import (
	"fmt"
	"reflect"
	"strings"
)

func GetOutParameters(funcType reflect.Type) []reflect.Type {
	if funcType.Kind() != reflect.Func {
		panic(fmt.Errorf("the kind of type '%v' is not function", funcType))
	}
	n := funcType.NumOut()
	paramTypes := make([]reflect.Type, n)
	for i := 0; i < n; i++ {
		paramTypes[i] = funcType.Out(i)
	}
	return paramTypes
}

func GetInParameters(funcType reflect.Type) []reflect.Type {
	if funcType.Kind() != reflect.Func {
		panic(fmt.Errorf("the kind of type '%v' is not function", funcType))
	}
	n := funcType.NumIn()
	paramTypes := make([]reflect.Type, n)
	for i := 0; i < n; i++ {
		paramTypes[i] = funcType.In(i)
	}
	return paramTypes
}

func IsErrorType(t reflect.Type) bool {
	et := reflect.TypeOf((*error)(nil)).Elem()
	return t.AssignableTo(et)
}

func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// GenericDef identifies an unbound generic type definition: the package path
// and base name of the type together with the number of type parameters.
// Two instantiations of the same definition ("Repo[int]", "Repo[string]")
// map to the same GenericDef.
type GenericDef struct {
	PkgPath string
	Name    string
	Arity   int
}

func (d GenericDef) String() string {
	if d.PkgPath == "" {
		return fmt.Sprintf("%s/%d", d.Name, d.Arity)
	}
	return fmt.Sprintf("%s.%s/%d", d.PkgPath, d.Name, d.Arity)
}

// GenericDefOf reports the generic definition a constructed generic type was
// instantiated from. One level of pointer indirection is unwrapped, so
// *Repo[int] and Repo[int] share a definition. The second return value is
// false when t is not an instantiation of a generic type.
//
// The runtime does not expose type parameters, but the Name of an
// instantiated type spells them out ("Repo[int]"), which is enough to
// recover the definition's base name and arity.
func GenericDefOf(t reflect.Type) (GenericDef, bool) {
	if t == nil {
		return GenericDef{}, false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	name := t.Name()
	open := strings.IndexByte(name, '[')
	if open < 0 || !strings.HasSuffix(name, "]") {
		return GenericDef{}, false
	}

	args := name[open+1 : len(name)-1]
	arity := 1
	depth := 0
	for _, r := range args {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				arity++
			}
		}
	}

	return GenericDef{
		PkgPath: t.PkgPath(),
		Name:    name[:open],
		Arity:   arity,
	}, true
}

// IsConstructedGeneric reports whether t is an instantiation of a generic
// type definition.
func IsConstructedGeneric(t reflect.Type) bool {
	_, ok := GenericDefOf(t)
	return ok
}

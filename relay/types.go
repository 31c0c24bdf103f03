package relay

import "reflect"

// typeKey identifies a runtime type by the address of its descriptor,
// which is unique per type and never moves.
func typeKey(t reflect.Type) uintptr {
	return reflect.ValueOf(t).Pointer()
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	name := t.Name()
	if name == "" { // unnamed (e.g., map/struct literal)
		name = t.String()
	}

	return name
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

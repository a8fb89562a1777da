package cyre

import "reflect"

// visitedPair identifies a pair of reference values already compared equal
// higher up the recursion, so a cycle closes instead of looping forever
// (spec §9: "treat reference-equal substructures as equal and short-circuit").
type visitedPair struct {
	a, b uintptr
}

// deepEqual reports structural equality over JSON-like values (numbers,
// strings, booleans, nil, ordered lists, string-keyed maps) for
// detectChanges comparisons. Numeric values compare by value across
// differing concrete types (int vs float64), matching JSON's single
// "number" kind. Falls back to reflect.DeepEqual for anything else
// (arbitrary structs a selector/transform might produce).
func deepEqual(a, b any) bool {
	return deepEqualRec(reflect.ValueOf(a), reflect.ValueOf(b), map[visitedPair]bool{})
}

func deepEqualRec(a, b reflect.Value, seen map[visitedPair]bool) bool {
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}

	// An interface compared against a non-interface compares on its
	// dynamic value, so []any{1} and []int{1} are equal.
	if a.Kind() == reflect.Interface && b.Kind() != reflect.Interface && !a.IsNil() {
		a = a.Elem()
	}
	if b.Kind() == reflect.Interface && a.Kind() != reflect.Interface && !b.IsNil() {
		b = b.Elem()
	}

	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}

	if a.Kind() != b.Kind() {
		// Interfaces were unwrapped above; anything else with mismatched
		// kinds is unequal.
		return false
	}

	switch a.Kind() {
	case reflect.Bool:
		return a.Bool() == b.Bool()
	case reflect.String:
		return a.String() == b.String()
	case reflect.Slice, reflect.Array:
		if a.Kind() == reflect.Slice {
			if a.IsNil() != b.IsNil() {
				return false
			}
			if !cycleGuard(a, b, seen) {
				return true
			}
		}
		if a.Len() != b.Len() {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !deepEqualRec(a.Index(i), b.Index(i), seen) {
				return false
			}
		}
		return true
	case reflect.Map:
		if a.IsNil() != b.IsNil() {
			return false
		}
		if a.Len() != b.Len() {
			return false
		}
		if !cycleGuard(a, b, seen) {
			return true
		}
		iter := a.MapRange()
		for iter.Next() {
			k := iter.Key()
			bv := b.MapIndex(k)
			if !bv.IsValid() {
				return false
			}
			if !deepEqualRec(iter.Value(), bv, seen) {
				return false
			}
		}
		return true
	case reflect.Ptr:
		if a.IsNil() != b.IsNil() {
			return false
		}
		if a.IsNil() {
			return true
		}
		if a.Pointer() == b.Pointer() {
			return true
		}
		if !cycleGuard(a, b, seen) {
			return true
		}
		return deepEqualRec(a.Elem(), b.Elem(), seen)
	case reflect.Interface:
		if a.IsNil() != b.IsNil() {
			return false
		}
		if a.IsNil() {
			return true
		}
		return deepEqualRec(a.Elem(), b.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !deepEqualRec(a.Field(i), b.Field(i), seen) {
				return false
			}
		}
		return true
	default:
		if !a.CanInterface() || !b.CanInterface() {
			return reflect.DeepEqual(a, b)
		}
		return reflect.DeepEqual(a.Interface(), b.Interface())
	}
}

// cycleGuard records the (a, b) reference pair and reports whether recursion
// should continue (true) or can short-circuit as already-equal (false)
// because this exact pair was seen earlier in the walk.
func cycleGuard(a, b reflect.Value, seen map[visitedPair]bool) bool {
	pair := visitedPair{a: a.Pointer(), b: b.Pointer()}
	if seen[pair] {
		return false
	}
	seen[pair] = true
	return true
}

// asFloat extracts a numeric value as float64 for any of Go's numeric
// kinds, so detectChanges treats 1 and 1.0 as the same JSON number.
func asFloat(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	default:
		return 0, false
	}
}

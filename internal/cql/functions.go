package cql

import (
	"fmt"
	"sort"
	"strings"
)

// ArgSpec constrains one function argument position.
type ArgSpec struct {
	Kinds    []Kind
	Families []Family
}

// Signature is a fixed-arity function signature.
type Signature struct {
	Name   string
	Args   []ArgSpec
	Result Type
}

var (
	textArgKinds    = []Kind{KindProperty, KindFunction, KindCasei, KindAccenti}
	patternArgKinds = []Kind{KindScalarLiteral, KindCasei, KindAccenti}
	spatialArgKinds = []Kind{KindProperty, KindFunction}
)

// functionSignatures is keyed by upper-cased function name.
var functionSignatures = map[string]Signature{
	"UPPER": {
		Name:   "UPPER",
		Args:   []ArgSpec{{Kinds: textArgKinds, Families: []Family{FamilyText}}},
		Result: String,
	},
	"LOWER": {
		Name:   "LOWER",
		Args:   []ArgSpec{{Kinds: textArgKinds, Families: []Family{FamilyText}}},
		Result: String,
	},
	"POSITION": {
		Name:   "POSITION",
		Result: Integer,
	},
	"DIAMETER2D": {
		Name:   "DIAMETER2D",
		Args:   []ArgSpec{{Kinds: spatialArgKinds, Families: []Family{FamilySpatial}}},
		Result: Double,
	},
	"DIAMETER3D": {
		Name:   "DIAMETER3D",
		Args:   []ArgSpec{{Kinds: spatialArgKinds, Families: []Family{FamilySpatial}}},
		Result: Double,
	},
	"ALIKE": {
		Name: "ALIKE",
		Args: []ArgSpec{
			{Kinds: textArgKinds, Families: []Family{FamilyText}},
			{Kinds: patternArgKinds, Families: []Family{FamilyText}},
		},
		Result: Boolean,
	},
}

// LookupFunction returns the signature of a function, matching the name
// case-insensitively.
func LookupFunction(name string) (Signature, bool) {
	sig, ok := functionSignatures[strings.ToUpper(name)]
	return sig, ok
}

// FunctionNames returns the names of all known functions, sorted.
func FunctionNames() []string {
	names := make([]string, 0, len(functionSignatures))
	for name := range functionSignatures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (tc *TypeChecker) function(f Function) (Type, error) {
	name := strings.ToUpper(f.Name)
	sig, ok := functionSignatures[name]
	if !ok {
		return Unknown, &FunctionSignatureError{
			Function: name,
			Expected: []string{"one of " + strings.Join(FunctionNames(), ", ")},
			Actual:   "unknown function",
		}
	}

	if len(f.Args) != len(sig.Args) {
		return Unknown, &FunctionSignatureError{
			Function: name,
			Expected: []string{fmt.Sprintf("%d argument(s)", len(sig.Args))},
			Actual:   fmt.Sprintf("%d", len(f.Args)),
		}
	}

	for i, arg := range f.Args {
		spec := sig.Args[i]

		kind := KindOf(arg)
		if !containsKind(spec.Kinds, kind) {
			return Unknown, &FunctionSignatureError{
				Function: name,
				Position: i + 1,
				Expected: kindNames(spec.Kinds),
				Actual:   string(kind),
			}
		}

		t, err := tc.typeOf(arg)
		if err != nil {
			return Unknown, err
		}
		if t != Unknown && !anyContains(spec.Families, t) {
			var expected []string
			for _, fam := range spec.Families {
				expected = appendSchemaTypes(expected, fam.Types)
			}
			return Unknown, &FunctionSignatureError{
				Function: name,
				Position: i + 1,
				Expected: expected,
				Actual:   t.SchemaType(),
			}
		}
	}

	return sig.Result, nil
}

func containsKind(kinds []Kind, k Kind) bool {
	for _, v := range kinds {
		if v == k {
			return true
		}
	}
	return false
}

func kindNames(kinds []Kind) []string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}

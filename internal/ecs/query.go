package ecs

import (
	"reflect"
	"strconv"

	"github.com/spf13/cast"
)

type predicateOp int

const (
	opHas predicateOp = iota
	opHasValue
	opNotValue
)

// Predicate is one conjunctive constraint of a query.
type Predicate struct {
	kind   Kind
	op     predicateOp
	fields Fields
}

// Has requires the component to be present.
func Has(kind Kind) Predicate {
	return Predicate{kind: kind, op: opHas}
}

// HasValue requires the component to be present with every listed field equal.
func HasValue(kind Kind, fields Fields) Predicate {
	return Predicate{kind: kind, op: opHasValue, fields: fields}
}

// NotValue excludes entities whose component carries every listed field value.
// An entity without the component passes.
func NotValue(kind Kind, fields Fields) Predicate {
	return Predicate{kind: kind, op: opNotValue, fields: fields}
}

// Kind returns the component kind the predicate inspects.
func (p Predicate) Kind() Kind {
	return p.kind
}

func (p Predicate) positive() bool {
	return p.op != opNotValue
}

type lookupFunc func(Kind, Entity) (Component, bool)

func (p Predicate) eval(get lookupFunc, e Entity) bool {
	c, ok := get(p.kind, e)
	switch p.op {
	case opHas:
		return ok
	case opHasValue:
		return ok && fieldsMatch(c, p.fields)
	case opNotValue:
		return !ok || !fieldsMatch(c, p.fields)
	}
	return false
}

func matchAll(preds []Predicate, get lookupFunc, e Entity) bool {
	for _, p := range preds {
		if !p.eval(get, e) {
			return false
		}
	}
	return true
}

func fieldsMatch(c Component, fields Fields) bool {
	for name, want := range fields {
		have, ok := c.Field(name)
		if !ok || !valuesEqual(have, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares by canonical string form so numeric filters match
// regardless of integer width or signedness.
func valuesEqual(have, want any) bool {
	hs, ok := canonical(have)
	if !ok {
		return false
	}
	ws, ok := canonical(want)
	if !ok {
		return false
	}
	return hs == ws
}

func canonical(v any) (string, bool) {
	if s, err := cast.ToStringE(v); err == nil {
		return s, true
	}
	// named types (core.ID, core.ResourceID, ...) fall through cast
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	case reflect.String:
		return rv.String(), true
	}
	return "", false
}

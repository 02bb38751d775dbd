/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/tomoncle/commonapi/predicate"
	"github.com/tomoncle/commonapi/types"
	"github.com/uptrace/bun/schema"
)

// Entry exposes the properties of one model instance, as mapped by Bun.
type Entry struct {
	entity interface{}
	value  reflect.Value
	table  *schema.Table
}

// PropertyEntry reads and writes one property of an Entry.
type PropertyEntry struct {
	entry *Entry
	field *schema.Field
}

// Entry returns the property accessors for entity, a non-nil pointer to a
// model struct.
func (s *Session) Entry(entity interface{}) (*Entry, error) {
	if err := checkEntity("entity", entity); err != nil {
		return nil, err
	}
	v := reflect.ValueOf(entity).Elem()
	return &Entry{
		entity: entity,
		value:  v,
		table:  s.db.Dialect().Tables().Get(v.Type()),
	}, nil
}

// Entity returns the tracked model pointer.
func (e *Entry) Entity() interface{} { return e.entity }

// Table returns the Bun table of the entity type.
func (e *Entry) Table() *schema.Table { return e.table }

// Properties returns the mapped properties in declaration order.
func (e *Entry) Properties() []*PropertyEntry {
	props := make([]*PropertyEntry, len(e.table.Fields))
	for i, f := range e.table.Fields {
		props[i] = &PropertyEntry{entry: e, field: f}
	}
	return props
}

// Property looks a property up by Go field name or column name, exact match
// first and then ignoring case.
func (e *Entry) Property(name string) (*PropertyEntry, error) {
	f, err := predicate.LookupField(e.table, name)
	if err != nil {
		return nil, err
	}
	return &PropertyEntry{entry: e, field: f}, nil
}

// Name returns the Go field name.
func (p *PropertyEntry) Name() string { return p.field.GoName }

// Column returns the column name.
func (p *PropertyEntry) Column() string { return p.field.Name }

// IsPrimaryKey reports whether the column is part of the primary key.
func (p *PropertyEntry) IsPrimaryKey() bool { return p.field.IsPK }

// Field returns the underlying Bun field.
func (p *PropertyEntry) Field() *schema.Field { return p.field }

// CurrentValue returns the property value held by the entity.
func (p *PropertyEntry) CurrentValue() interface{} {
	return p.entry.value.FieldByIndex(p.field.Index).Interface()
}

// SetCurrentValue assigns v, converting between T and *T. Numbers convert
// between kinds only when the value is representable exactly, except that
// float64 to float32 may round.
func (p *PropertyEntry) SetCurrentValue(v interface{}) error {
	dst, src, err := p.prepare(v)
	if err != nil {
		return err
	}
	dst.Set(src)
	return nil
}

// prepare returns the property's field and v converted to its type.
func (p *PropertyEntry) prepare(v interface{}) (reflect.Value, reflect.Value, error) {
	dst := p.entry.value.FieldByIndex(p.field.Index)
	if !dst.CanSet() {
		return dst, reflect.Value{}, types.NewArgumentError(p.field.GoName, "property is not settable")
	}
	if v == nil {
		return dst, reflect.Zero(dst.Type()), nil
	}
	rv := reflect.ValueOf(v)
	if isNumeric(rv.Kind()) && isNumeric(dst.Kind()) {
		n, ok := convertNumber(rv, dst.Type())
		if !ok {
			return dst, reflect.Value{}, types.NewArgumentError(p.field.GoName,
				"cannot assign %v to %s without loss", v, dst.Type())
		}
		return dst, n, nil
	}
	src, ok := assignable(rv, dst.Type())
	if !ok {
		return dst, reflect.Value{}, types.NewArgumentError(p.field.GoName, "cannot assign %T to %s", v, dst.Type())
	}
	return dst, src, nil
}

// SetValues copies every non-null value of source onto the same-named,
// non-key properties of the entry and returns the names of the properties
// written, sorted. source is a struct, a pointer to one, or a map keyed by
// property or column name. Nil pointers, interfaces, maps, slices, missing
// keys and unexported struct fields are null; so are zero values of other
// struct fields, so SetValues cannot clear a property. Nothing is written
// when any value cannot be assigned.
func (e *Entry) SetValues(source interface{}) ([]string, error) {
	if source == nil {
		return nil, types.NewArgumentError("source", "cannot be nil")
	}
	lookup, err := sourceLookup(source)
	if err != nil {
		return nil, err
	}

	type assignment struct {
		dst, src reflect.Value
	}
	var (
		pending []assignment
		written []string
	)
	for _, p := range e.Properties() {
		if p.IsPrimaryKey() {
			continue
		}
		v, ok := lookup(p.field)
		if !ok {
			continue
		}
		dst, src, err := p.prepare(v.Interface())
		if err != nil {
			return nil, err
		}
		pending = append(pending, assignment{dst: dst, src: src})
		written = append(written, p.Name())
	}
	for _, a := range pending {
		a.dst.Set(a.src)
	}
	sort.Strings(written)
	return written, nil
}

type valueLookup func(f *schema.Field) (reflect.Value, bool)

func sourceLookup(source interface{}) (valueLookup, error) {
	v := reflect.ValueOf(source)
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, types.NewArgumentError("source", "cannot be nil")
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		return func(f *schema.Field) (reflect.Value, bool) {
			sf, ok := t.FieldByName(f.GoName)
			if !ok {
				sf, ok = t.FieldByNameFunc(func(n string) bool { return strings.EqualFold(n, f.GoName) })
			}
			// Unexported fields cannot be read and count as absent.
			if !ok || !sf.IsExported() {
				return reflect.Value{}, false
			}
			fv, err := v.FieldByIndexErr(sf.Index)
			if err != nil || !fv.CanInterface() || isNull(fv) || fv.IsZero() {
				return reflect.Value{}, false
			}
			return fv, true
		}, nil
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, types.NewArgumentError("source", "map keys must be strings, got %s", v.Type().Key())
		}
		return func(f *schema.Field) (reflect.Value, bool) {
			iter := v.MapRange()
			for iter.Next() {
				k := iter.Key().String()
				if !strings.EqualFold(k, f.GoName) && !strings.EqualFold(k, f.Name) {
					continue
				}
				mv := iter.Value()
				if isNull(mv) {
					return reflect.Value{}, false
				}
				for mv.Kind() == reflect.Interface {
					mv = mv.Elem()
				}
				return mv, true
			}
			return reflect.Value{}, false
		}, nil
	default:
		return nil, types.NewArgumentError("source", "must be a struct or a map, got %T", source)
	}
}

func isNull(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func assignable(src reflect.Value, dst reflect.Type) (reflect.Value, bool) {
	switch {
	case src.Type().AssignableTo(dst):
		return src, true
	case src.Kind() == reflect.Ptr && src.Type().Elem().AssignableTo(dst):
		return src.Elem(), true
	case dst.Kind() == reflect.Ptr && src.Type().AssignableTo(dst.Elem()):
		p := reflect.New(dst.Elem())
		p.Elem().Set(src)
		return p, true
	}
	return reflect.Value{}, false
}

// Floats at or beyond these bounds do not fit int64 and uint64.
const (
	twoTo63 = float64(1 << 63)
	twoTo64 = twoTo63 * 2
)

// convertNumber converts src to dst, failing on overflow, on a fraction
// going to an integer, and on an integer a float cannot hold exactly.
func convertNumber(src reflect.Value, dst reflect.Type) (reflect.Value, bool) {
	out := reflect.New(dst).Elem()
	switch {
	case src.CanInt():
		i := src.Int()
		switch {
		case out.CanInt():
			if out.OverflowInt(i) {
				return reflect.Value{}, false
			}
			out.SetInt(i)
		case out.CanUint():
			if i < 0 || out.OverflowUint(uint64(i)) {
				return reflect.Value{}, false
			}
			out.SetUint(uint64(i))
		default:
			out.SetFloat(float64(i))
			if f := out.Float(); f < -twoTo63 || f >= twoTo63 || int64(f) != i {
				return reflect.Value{}, false
			}
		}
	case src.CanUint():
		u := src.Uint()
		switch {
		case out.CanInt():
			if u > math.MaxInt64 || out.OverflowInt(int64(u)) {
				return reflect.Value{}, false
			}
			out.SetInt(int64(u))
		case out.CanUint():
			if out.OverflowUint(u) {
				return reflect.Value{}, false
			}
			out.SetUint(u)
		default:
			out.SetFloat(float64(u))
			if f := out.Float(); f >= twoTo64 || uint64(f) != u {
				return reflect.Value{}, false
			}
		}
	default:
		f := src.Float()
		switch {
		case out.CanFloat():
			if out.OverflowFloat(f) {
				return reflect.Value{}, false
			}
			out.SetFloat(f)
		case math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f):
			return reflect.Value{}, false
		case out.CanInt():
			if f < -twoTo63 || f >= twoTo63 || out.OverflowInt(int64(f)) {
				return reflect.Value{}, false
			}
			out.SetInt(int64(f))
		default:
			if f < 0 || f >= twoTo64 || out.OverflowUint(uint64(f)) {
				return reflect.Value{}, false
			}
			out.SetUint(uint64(f))
		}
	}
	return out, true
}

func isNumeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Float64
}

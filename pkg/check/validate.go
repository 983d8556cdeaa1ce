package check

import (
	"reflect"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Validatable is implemented by values that can check their own fields.
type Validatable interface {
	Validate() []error
}

// Validate walks v through pointers, struct fields and slices and calls Validate on every
// Validatable value it finds. All failures are returned together.
func Validate(v any) error {
	var result *multierror.Error
	walk(reflect.ValueOf(v), "", func(err error) {
		result = multierror.Append(result, err)
	})
	return result.ErrorOrNil()
}

func walk(v reflect.Value, path string, report func(error)) {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if !v.IsNil() {
			walk(v.Elem(), path, report)
		}
		return
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if field := v.Type().Field(i); field.IsExported() {
				walk(v.Field(i), join(path, field.Name), report)
			}
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			walk(v.Index(i), join(path, "["+strconv.Itoa(i)+"]"), report)
		}
	}

	val, ok := validatable(v)
	if !ok {
		return
	}
	for _, err := range val.Validate() {
		if err == nil {
			continue
		}
		if path != "" {
			err = errors.Wrap(err, path)
		}
		report(err)
	}
}

// validatable finds a Validate method on v or, when v is addressable, on its address.
func validatable(v reflect.Value) (Validatable, bool) {
	if !v.IsValid() || !v.CanInterface() {
		return nil, false
	}
	if val, ok := v.Interface().(Validatable); ok {
		return val, true
	}
	if v.CanAddr() {
		if val, ok := v.Addr().Interface().(Validatable); ok {
			return val, true
		}
	}
	return nil, false
}

func join(path, name string) string {
	switch {
	case path == "":
		return name
	case name[0] == '[':
		return path + name
	default:
		return path + "." + name
	}
}

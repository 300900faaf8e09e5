// Package bitfield packs and unpacks struct fields into a single
// integer. Adapted from the teacher's own src/bitfield package, itself
// "a simplified version based on golang.org/x/text/internal/gen/bitfield"
// (an internal package upstream, hence the local reimplementation).
package bitfield

import (
	"fmt"
	"reflect"
)

// Config determines settings for packing and unpacking.
type Config struct {
	// NumBits fixes the maximum allowed bits for the integer
	// representation. Zero means no limit is enforced.
	NumBits uint
}

// Pack packs the annotated bit ranges of struct x into a uint64. Only
// fields tagged `bitfield:",N"` are packed, in declaration order,
// low bits first.
func Pack(x interface{}, c *Config) (uint64, error) {
	if c == nil {
		c = &Config{NumBits: 64}
	}

	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0, fmt.Errorf("bitfield: Pack expected struct, got %v", v.Kind())
	}

	t := v.Type()
	var packed uint64
	var bitOffset uint

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		bits, ok := fieldBits(field)
		if !ok || bits == 0 {
			continue
		}

		fieldValue := v.Field(i)
		var fieldBitsVal uint64
		switch fieldValue.Kind() {
		case reflect.Bool:
			if fieldValue.Bool() {
				fieldBitsVal = 1
			}
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fieldBitsVal = fieldValue.Uint()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			val := fieldValue.Int()
			if val < 0 {
				return 0, fmt.Errorf("bitfield: Pack negative value %d for field %s", val, field.Name)
			}
			fieldBitsVal = uint64(val)
		default:
			return 0, fmt.Errorf("bitfield: Pack unsupported field type %v for field %s", fieldValue.Kind(), field.Name)
		}

		maxValue := maxForBits(bits)
		if fieldBitsVal > maxValue {
			return 0, fmt.Errorf("bitfield: Pack value %d exceeds %d bits for field %s", fieldBitsVal, bits, field.Name)
		}

		packed |= fieldBitsVal << bitOffset
		bitOffset += bits
	}

	if c.NumBits > 0 && bitOffset > c.NumBits {
		return 0, fmt.Errorf("bitfield: Pack total bits %d exceeds NumBits %d", bitOffset, c.NumBits)
	}
	return packed, nil
}

// Unpack is the inverse of Pack: it fills the tagged fields of x
// (a pointer to struct) from packed's bit ranges.
func Unpack(packed uint64, x interface{}) error {
	v := reflect.ValueOf(x)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bitfield: Unpack expects a pointer to struct")
	}
	v = v.Elem()
	t := v.Type()
	var bitOffset uint

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		bits, ok := fieldBits(field)
		if !ok || bits == 0 {
			continue
		}

		raw := (packed >> bitOffset) & maxForBits(bits)
		fieldValue := v.Field(i)
		if !fieldValue.CanSet() {
			return fmt.Errorf("bitfield: Unpack cannot set field %s", field.Name)
		}
		switch fieldValue.Kind() {
		case reflect.Bool:
			fieldValue.SetBool(raw != 0)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fieldValue.SetUint(raw)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fieldValue.SetInt(int64(raw))
		default:
			return fmt.Errorf("bitfield: Unpack unsupported field type %v for field %s", fieldValue.Kind(), field.Name)
		}
		bitOffset += bits
	}
	return nil
}

func fieldBits(field reflect.StructField) (uint, bool) {
	tag := field.Tag.Get("bitfield")
	if tag == "" {
		return 0, false
	}
	var bits uint
	if _, err := fmt.Sscanf(tag, ",%d", &bits); err != nil {
		var methodName string
		if _, err := fmt.Sscanf(tag, "%s,%d", &methodName, &bits); err != nil {
			return 0, false
		}
	}
	return bits, true
}

func maxForBits(bits uint) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}

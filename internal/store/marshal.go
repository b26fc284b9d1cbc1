package store

import (
	"fmt"

	"github.com/roach88/ordersync/internal/value"
)

// marshalValue converts a value to canonical JSON TEXT for storage.
// A nil value is stored as null.
func marshalValue(v value.Value) (string, error) {
	if v == nil {
		v = value.Null{}
	}
	data, err := value.Canonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// marshalFields converts sub-order fields to canonical JSON TEXT.
func marshalFields(fields value.Object) (string, error) {
	if fields == nil {
		fields = value.Object{}
	}
	return marshalValue(fields)
}

// unmarshalValue parses canonical JSON TEXT.
// Integers survive beyond 2^53 because value.Parse decodes with json.Number.
func unmarshalValue(data string) (value.Value, error) {
	v, err := value.Parse([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

// unmarshalFields parses sub-order fields.
func unmarshalFields(data string) (value.Object, error) {
	obj, err := value.ParseObject([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return obj, nil
}

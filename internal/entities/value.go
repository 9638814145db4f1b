package entities

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// NormalizeValue converts v into the JSON-compatible form stored on both
// attribute surfaces. Integers become float64, []byte becomes a base64 string.
func NormalizeValue(v interface{}) (interface{}, error) {
	pv, err := structpb.NewValue(v)
	if err != nil {
		return nil, fmt.Errorf("unsupported attribute value %T: %w", v, err)
	}
	return pv.AsInterface(), nil
}

// IsEmptyValue reports whether v counts as "no value": nil, the empty
// string, or an empty list or object.
func IsEmptyValue(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	case []string:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	default:
		return false
	}
}

package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/roach88/spaghetti/internal/ir"
)

// marshalArgs converts edit arguments to canonical JSON TEXT for storage.
func marshalArgs(args ir.IRObject) (string, error) {
	if args == nil {
		args = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	return string(data), nil
}

// unmarshalArgs parses canonical JSON TEXT back into an IRObject.
// Numbers decode through json.Number so integers above 2^53 survive;
// fractional numbers and null are rejected because IR never contains them.
func unmarshalArgs(text string) (ir.IRObject, error) {
	if text == "" || text == "{}" {
		return ir.IRObject{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unmarshal args: trailing data")
	}
	v, err := fromJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("unmarshal args: %w", err)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("unmarshal args: expected object, got %T", v)
	}
	return obj, nil
}

func fromJSON(raw any) (ir.IRValue, error) {
	switch v := raw.(type) {
	case string:
		return ir.IRString(v), nil
	case bool:
		return ir.IRBool(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("non-integer number %s", v)
		}
		return ir.IRInt(n), nil
	case []any:
		arr := make(ir.IRArray, len(v))
		for i, e := range v {
			x, err := fromJSON(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = x
		}
		return arr, nil
	case map[string]any:
		obj := make(ir.IRObject, len(v))
		for k, e := range v {
			x, err := fromJSON(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			obj[k] = x
		}
		return obj, nil
	case nil:
		return nil, fmt.Errorf("null is not an IR value")
	default:
		return nil, fmt.Errorf("unsupported JSON value %T", raw)
	}
}

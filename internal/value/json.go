package value

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The journal stores values as tagged JSON so that variants survive a
// round trip exactly: plain JSON cannot tell Int(1) from Float(1) or
// preserve dict key order. The envelope is {"t": <tag>, "v": <payload>}
// with dict payloads encoded as a key/value pair array.

type taggedValue struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v"`
}

type taggedPair struct {
	K string          `json:"k"`
	V json.RawMessage `json:"v"`
}

// Marshal encodes a value into its tagged JSON form.
func Marshal(v Value) ([]byte, error) {
	payload, err := marshalPayload(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(taggedValue{T: TypeName(v), V: payload})
}

func marshalPayload(v Value) (json.RawMessage, error) {
	switch val := v.(type) {
	case Str:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		return json.Marshal(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	case List:
		items := make([]json.RawMessage, len(val))
		for i, item := range val {
			enc, err := Marshal(item)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			items[i] = enc
		}
		return json.Marshal(items)
	case *Dict:
		pairs := make([]taggedPair, 0, val.Len())
		for _, k := range val.keys {
			enc, err := Marshal(val.entries[k])
			if err != nil {
				return nil, fmt.Errorf("dict[%q]: %w", k, err)
			}
			pairs = append(pairs, taggedPair{K: k, V: enc})
		}
		return json.Marshal(pairs)
	default:
		return nil, fmt.Errorf("unknown value variant %T", v)
	}
}

// Unmarshal decodes a tagged JSON form produced by Marshal.
func Unmarshal(data []byte) (Value, error) {
	var tv taggedValue
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&tv); err != nil {
		return nil, err
	}
	switch tv.T {
	case "string":
		var s string
		if err := json.Unmarshal(tv.V, &s); err != nil {
			return nil, err
		}
		return Str(s), nil
	case "int":
		var n json.Number
		if err := json.Unmarshal(tv.V, &n); err != nil {
			return nil, err
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("int payload %s: %w", n, err)
		}
		return Int(i), nil
	case "float":
		var f float64
		if err := json.Unmarshal(tv.V, &f); err != nil {
			return nil, err
		}
		return Float(f), nil
	case "bool":
		var b bool
		if err := json.Unmarshal(tv.V, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case "list":
		var items []json.RawMessage
		if err := json.Unmarshal(tv.V, &items); err != nil {
			return nil, err
		}
		out := make(List, len(items))
		for i, raw := range items {
			item, err := Unmarshal(raw)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			out[i] = item
		}
		return out, nil
	case "dict":
		var pairs []taggedPair
		if err := json.Unmarshal(tv.V, &pairs); err != nil {
			return nil, err
		}
		out := NewDict()
		for _, p := range pairs {
			item, err := Unmarshal(p.V)
			if err != nil {
				return nil, fmt.Errorf("dict[%q]: %w", p.K, err)
			}
			out.Set(p.K, item)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown value tag %q", tv.T)
	}
}

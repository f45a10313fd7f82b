// Package codec converts Tether payloads between MessagePack, the wire
// convention used by Tether agents, and JSON for humans.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind describes how Render interpreted a payload.
type Kind int

const (
	KindEmpty Kind = iota
	KindMsgpack
	KindText
	KindBinary
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindMsgpack:
		return "msgpack"
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// EmptyMessage is what Render shows for a zero-length payload.
const EmptyMessage = "[EMPTY_MESSAGE]"

// Encode marshals v as MessagePack. Struct fields use their json tags so the
// same types serve both encodings.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode unmarshals a single MessagePack value from b into v. Trailing bytes
// are an error.
func Decode(b []byte, v any) error {
	r := bytes.NewReader(b)
	dec := msgpack.NewDecoder(r)
	dec.SetCustomStructTag("json")
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMsgpack, err)
	}
	if r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrInvalidMsgpack, r.Len())
	}
	return nil
}

// JSONToMsgpack converts a JSON document to MessagePack. Whole numbers are
// encoded as integers, everything else keeps its JSON type.
func JSONToMsgpack(js []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: more than one value", ErrInvalidJSON)
	}
	return Encode(fromJSON(v))
}

// MsgpackToJSON converts one MessagePack value to compact JSON.
func MsgpackToJSON(b []byte) ([]byte, error) {
	var v any
	if err := Decode(b, &v); err != nil {
		return nil, err
	}
	out, err := json.Marshal(toJSON(v))
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	return out, nil
}

// Render turns a payload into a printable string: JSON for MessagePack,
// the text itself for valid UTF-8, and a byte listing otherwise.
func Render(payload []byte) (string, Kind) {
	if len(payload) == 0 {
		return EmptyMessage, KindEmpty
	}
	if js, err := MsgpackToJSON(payload); err == nil {
		return string(js), KindMsgpack
	}
	if utf8.Valid(payload) {
		return string(payload), KindText
	}
	return fmt.Sprintf("%v", payload), KindBinary
}

func fromJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		for i := range t {
			t[i] = fromJSON(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = fromJSON(t[k])
		}
		return t
	default:
		return v
	}
}

// toJSON rewrites maps with non-string keys, which MessagePack allows and
// JSON does not.
func toJSON(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = toJSON(val)
		}
		return m
	case map[string]any:
		for k := range t {
			t[k] = toJSON(t[k])
		}
		return t
	case []any:
		for i := range t {
			t[i] = toJSON(t[i])
		}
		return t
	default:
		return v
	}
}

// Package recording captures Tether traffic to disk and plays it back.
//
// A recording is an ordered list of rows. On disk it is a JSON array of
//
//	{"topic": "brain/studio/colours", "message": {"type": "Buffer", "data": [129, 161, 120, 1]}, "deltaTime": 40}
//
// where deltaTime is the gap in milliseconds since the previous row. The
// same rows can be kept in SQLite instead (see SQLiteStore).
package recording

import (
	"encoding/json"
	"fmt"
)

// bufferType tags a payload in the JSON format.
const bufferType = "Buffer"

// Row is one recorded message.
type Row struct {
	Topic     string  `json:"topic"`
	Message   Payload `json:"message"`
	DeltaTime uint64  `json:"deltaTime"`
}

// Payload holds raw message bytes. It marshals as {"type":"Buffer","data":[...]}
// with data as an array of byte values, not base64.
type Payload []byte

type payloadJSON struct {
	Type string `json:"type"`
	Data []int  `json:"data"`
}

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	data := make([]int, len(p))
	for i, b := range p {
		data[i] = int(b)
	}
	return json.Marshal(payloadJSON{Type: bufferType, Data: data})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Payload) UnmarshalJSON(b []byte) error {
	var raw payloadJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out := make([]byte, len(raw.Data))
	for i, v := range raw.Data {
		if v < 0 || v > 255 {
			return fmt.Errorf("%w: byte %d out of range: %d", ErrMalformedRow, i, v)
		}
		out[i] = byte(v)
	}
	*p = out
	return nil
}

// Sink receives rows as they are recorded.
type Sink interface {
	WriteRow(row Row) error
	Close() error
}

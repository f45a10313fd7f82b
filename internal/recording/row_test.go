package recording

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRow_JSONFormat(t *testing.T) {
	row := Row{Topic: "dummy/dummy01/testout", Message: Payload{0x81, 0xa1, 0x78, 0x01}, DeltaTime: 40}

	b, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"topic":"dummy/dummy01/testout","message":{"type":"Buffer","data":[129,161,120,1]},"deltaTime":40}`
	if string(b) != want {
		t.Errorf("Marshal() = %s, want %s", b, want)
	}

	var back Row
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Topic != row.Topic || back.DeltaTime != row.DeltaTime || string(back.Message) != string(row.Message) {
		t.Errorf("Unmarshal() = %+v, want %+v", back, row)
	}
}

func TestPayload_EmptyData(t *testing.T) {
	b, err := json.Marshal(Row{Topic: "a/b/c"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"topic":"a/b/c","message":{"type":"Buffer","data":[]},"deltaTime":0}`
	if string(b) != want {
		t.Errorf("Marshal() = %s, want %s", b, want)
	}
}

func TestPayload_OutOfRange(t *testing.T) {
	var p Payload
	err := json.Unmarshal([]byte(`{"type":"Buffer","data":[1,256]}`), &p)
	if !errors.Is(err, ErrMalformedRow) {
		t.Errorf("Unmarshal() error = %v, want ErrMalformedRow", err)
	}
}

package types

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONDocument stores an opaque JSON payload in a JSONB column. It is sent
// to the driver as text so Postgres parses it as json rather than bytea.
type JSONDocument json.RawMessage

// NewJSONDocument marshals v. A nil value yields an empty object.
func NewJSONDocument(v any) (JSONDocument, error) {
	if v == nil {
		return JSONDocument("{}"), nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("invalid json payload")
		}
		return JSONDocument(raw), nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return JSONDocument(raw), nil
}

// IsEmpty reports whether no payload is stored.
func (d JSONDocument) IsEmpty() bool {
	trimmed := bytes.TrimSpace(d)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// Decode unmarshals the payload into dest.
func (d JSONDocument) Decode(dest any) error {
	if d.IsEmpty() {
		return fmt.Errorf("empty json payload")
	}
	return json.Unmarshal(d, dest)
}

func (d JSONDocument) Value() (driver.Value, error) {
	if d.IsEmpty() {
		return nil, nil
	}
	return string(d), nil
}

func (d *JSONDocument) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*d = nil
	case []byte:
		*d = append(JSONDocument(nil), v...)
	case string:
		*d = JSONDocument(v)
	default:
		return fmt.Errorf("unsupported json document type %T", value)
	}
	return nil
}

func (d JSONDocument) MarshalJSON() ([]byte, error) {
	if d.IsEmpty() {
		return []byte("null"), nil
	}
	return d, nil
}

func (d *JSONDocument) UnmarshalJSON(data []byte) error {
	*d = append(JSONDocument(nil), data...)
	return nil
}

package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Properties is an open-ended attribute bag persisted as a JSON text column.
// The core treats its contents as opaque payload; change detection compares it
// structurally via canonical JSON.
type Properties map[string]any

// Value serializes the bag for storage.
func (p Properties) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

// Scan restores the bag from its stored JSON form.
func (p *Properties) Scan(value any) error {
	if value == nil {
		*p = Properties{}
		return nil
	}
	var raw []byte
	switch typed := value.(type) {
	case []byte:
		raw = typed
	case string:
		raw = []byte(typed)
	default:
		return fmt.Errorf("model: cannot scan %T into Properties", value)
	}
	if len(raw) == 0 {
		*p = Properties{}
		return nil
	}
	return json.Unmarshal(raw, p)
}

// Canonical returns a stable JSON encoding used for structural equality checks.
// encoding/json writes map keys in sorted order, so equal bags encode equally.
func (p Properties) Canonical() string {
	if len(p) == 0 {
		return "{}"
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(encoded)
}

// NameList is a resolved list of user or group names persisted as a JSON array.
type NameList []string

// Value serializes the list for storage.
func (l NameList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	encoded, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

// Scan restores the list from its stored JSON form.
func (l *NameList) Scan(value any) error {
	if value == nil {
		*l = NameList{}
		return nil
	}
	var raw []byte
	switch typed := value.(type) {
	case []byte:
		raw = typed
	case string:
		raw = []byte(typed)
	default:
		return fmt.Errorf("model: cannot scan %T into NameList", value)
	}
	if len(raw) == 0 {
		*l = NameList{}
		return nil
	}
	return json.Unmarshal(raw, l)
}

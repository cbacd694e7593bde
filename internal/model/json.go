package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// FeatureMap stores a subject's named numeric features as a JSON column.
type FeatureMap map[string]float64

// Value implements driver.Valuer.
func (m FeatureMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *FeatureMap) Scan(value interface{}) error {
	if value == nil {
		*m = FeatureMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("unsupported type for FeatureMap")
		}
	}
	return json.Unmarshal(bytes, m)
}

// MetadataMap stores free-form string metadata as a JSON column.
type MetadataMap map[string]string

// Value implements driver.Valuer.
func (m MetadataMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *MetadataMap) Scan(value interface{}) error {
	if value == nil {
		*m = MetadataMap{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else {
			return errors.New("unsupported type for MetadataMap")
		}
	}
	return json.Unmarshal(bytes, m)
}

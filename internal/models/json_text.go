package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSONText is a JSON document stored as TEXT on SQLite and JSONB on Postgres.
// A JSON column on SQLite has NUMERIC affinity, which turns documents such as
// 10 or 1.5 into numbers; TEXT keeps the bytes as written.
type JSONText datatypes.JSON

// GormDataType implements schema.GormDataTypeInterface.
func (JSONText) GormDataType() string {
	return "json"
}

// GormDBDataType picks the column type per dialect.
func (JSONText) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	switch db.Dialector.Name() {
	case "postgres":
		return "JSONB"
	case "mysql":
		return "JSON"
	default:
		return "TEXT"
	}
}

// Value implements driver.Valuer.
func (j JSONText) Value() (driver.Value, error) {
	return datatypes.JSON(j).Value()
}

// Scan implements sql.Scanner. Numeric and boolean cells written by older
// schemas are converted back to their JSON text.
func (j *JSONText) Scan(value any) error {
	var raw any = value
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case int64:
		raw = []byte(strconv.FormatInt(v, 10))
	case float64:
		raw = []byte(strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		raw = []byte(strconv.FormatBool(v))
	}
	var inner datatypes.JSON
	if errScan := inner.Scan(raw); errScan != nil {
		return fmt.Errorf("models: scan json text: %w", errScan)
	}
	*j = JSONText(inner)
	return nil
}

// MarshalJSON emits the stored document unchanged.
func (j JSONText) MarshalJSON() ([]byte, error) {
	return datatypes.JSON(j).MarshalJSON()
}

// UnmarshalJSON stores a copy of data.
func (j *JSONText) UnmarshalJSON(data []byte) error {
	var inner datatypes.JSON
	if errUnmarshal := inner.UnmarshalJSON(data); errUnmarshal != nil {
		return errUnmarshal
	}
	*j = JSONText(inner)
	return nil
}

// Raw returns the document as json.RawMessage.
func (j JSONText) Raw() json.RawMessage {
	return json.RawMessage(j)
}

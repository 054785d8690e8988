package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/informatics-isi-edu/hatrac/internal/herr"
)

// jsonColumn adapts an arbitrary Go value to database/sql's Scanner/Valuer
// pair for the *_json JSONB columns in schema.go, so ACL, Aux, and upload
// metadata round-trip through Postgres without per-type boilerplate.
type jsonColumn struct{ dest interface{} }

func jsonScanner(dest interface{}) *jsonColumn { return &jsonColumn{dest: dest} }

func (j *jsonColumn) Scan(src interface{}) error {
	if src == nil {
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("jsonColumn: unsupported src type %T", src)
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, j.dest)
}

func (j *jsonColumn) Value() (driver.Value, error) {
	b, err := json.Marshal(j.dest)
	if err != nil {
		return nil, herr.Internal(err, "marshal json column")
	}
	return string(b), nil
}

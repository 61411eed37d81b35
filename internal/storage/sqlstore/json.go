package sqlstore

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/go-faster/errors"
)

// jsonText stores V as JSON in a TEXT column.
type jsonText[T any] struct {
	V T
}

func (j *jsonText[T]) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.Errorf("scan json: unsupported type %T", src)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, &j.V); err != nil {
		return errors.Wrap(err, "scan json")
	}
	return nil
}

func (j jsonText[T]) Value() (driver.Value, error) {
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, errors.Wrap(err, "encode json")
	}
	return string(b), nil
}

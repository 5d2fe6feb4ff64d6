package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UUIDArray maps a Postgres uuid[] column. GORM's postgres driver hands
// the raw array literal to Scan, so the parsing is done here.
type UUIDArray []uuid.UUID

func (a *UUIDArray) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = UUIDArray{}
		return nil
	case string:
		return a.decode(v)
	case []byte:
		return a.decode(string(v))
	default:
		return fmt.Errorf("UUIDArray: cannot scan %T", src)
	}
}

// Value renders the {uuid,uuid} literal Postgres expects.
func (a UUIDArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}
	parts := make([]string, len(a))
	for i, id := range a {
		parts[i] = id.String()
	}
	return "{" + strings.Join(parts, ",") + "}", nil
}

func (a *UUIDArray) decode(literal string) error {
	literal = strings.TrimSpace(literal)
	literal = strings.TrimPrefix(literal, "{")
	literal = strings.TrimSuffix(literal, "}")
	if strings.TrimSpace(literal) == "" {
		*a = UUIDArray{}
		return nil
	}

	elems := strings.Split(literal, ",")
	out := make(UUIDArray, 0, len(elems))
	for _, elem := range elems {
		elem = strings.TrimSpace(strings.Trim(elem, `"`))
		id, err := uuid.Parse(elem)
		if err != nil {
			return fmt.Errorf("UUIDArray: element %q: %w", elem, err)
		}
		out = append(out, id)
	}
	*a = out
	return nil
}

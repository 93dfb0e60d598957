package ai

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/ellahos/ellahos/core"
)

// Breakdown maps budget categories to values; stored as jsonb.
type Breakdown map[string]float64

func (b *Breakdown) Scan(src interface{}) error {
	return core.ScanJSON(src, b)
}

func (b Breakdown) Value() (driver.Value, error) {
	if b == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(b)
}

type SimilarJobRefs []SimilarJobRef

func (r *SimilarJobRefs) Scan(src interface{}) error {
	*r = SimilarJobRefs{}
	return core.ScanJSON(src, r)
}

func (r SimilarJobRefs) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

// Strings is a jsonb array of strings.
type Strings []string

func (s *Strings) Scan(src interface{}) error {
	*s = Strings{}
	return core.ScanJSON(src, s)
}

func (s Strings) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

package keys

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

type hasher interface {
	WriteString(value string) error
}

// NewParamsHasher returns a hasher for a parameter map. It writes the entries
// sorted by key so that two maps that are identical except for iteration order
// produce the same hash.
func NewParamsHasher(params map[string]any) *paramsHasher {
	return &paramsHasher{params}
}

type paramsHasher struct {
	params map[string]any
}

func (p *paramsHasher) Append(h hasher) error {
	names := make([]string, 0, len(p.params))
	for name := range p.params {
		names = append(names, name)
	}
	sort.Strings(names)

	// prefix to avoid overlap with previous strings written
	if err := h.WriteString("/"); err != nil {
		return err
	}

	for _, name := range names {
		value, err := json.Marshal(p.params[name])
		if err != nil {
			return fmt.Errorf("marshalling parameter '%s': %w", name, err)
		}

		if err := h.WriteString(fmt.Sprintf("%s=%s,", name, value)); err != nil {
			return err
		}
	}

	return nil
}

// ParamsFingerprint computes the stable uint64 fingerprint of a parameter map.
func ParamsFingerprint(params map[string]any) (uint64, error) {
	hash := NewCacheKeyHasher(xxhash.New())
	if err := NewParamsHasher(params).Append(hash); err != nil {
		return 0, err
	}

	return hash.Key().ToUInt64(), nil
}

package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Fingerprint renders a parameter map as canonical JSON: map keys are
// emitted in sorted order at every nesting level, so two maps with the
// same contents always produce the same string regardless of insertion
// order. The result participates in the cache key.
func Fingerprint(params map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, params); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, e); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("non-serializable parameter value %T: %w", v, err)
		}
		buf.Write(b)
		return nil
	}
}

package model

import "gorm.io/datatypes"

// MergeMetadata returns a new map holding base with patch merged on top.
// Nested maps are merged key by key; any other value in patch replaces the
// one in base. Neither argument is modified.
func MergeMetadata(base, patch map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		pm, pok := asMap(v)
		bm, bok := asMap(out[k])
		if pok && bok {
			out[k] = MergeMetadata(bm, pm)
			continue
		}
		out[k] = v
	}
	return out
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case datatypes.JSONMap:
		return m, true
	}
	return nil, false
}

package log

import "sort"

const (
	FieldKeyPrefix  = "prefix"
	FieldKeyCluster = "cluster"
	FieldKeyStage   = "stage"
	FieldKeyShard   = "shard"
)

// Fields type, used to pass to `WithFields`.
type Fields map[string]any

// Keys returns the sorted field keys, without the given ones.
func (fields Fields) Keys(removeKeys ...string) []string {
	keys := make([]string, 0, len(fields))

	for key := range fields {
		var skip bool

		for _, removeKey := range removeKeys {
			if key == removeKey {
				skip = true
				break
			}
		}

		if !skip {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	return keys
}

package credeval

import (
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"sort"
	"trustresolver/pkg/model"
)

// classifyECS computes the SHA-384 JCS digest of a credential schema's JSON text (with `$id`
// stripped, since the same schema content can be served under different identifiers) and compares
// it against the four configured reference digests.
func classifyECS(schemaJSON []byte, digests model.ECSDigests) model.ECSType {
	digest, err := jcsDigest(schemaJSON)
	if err != nil {
		return ""
	}

	switch digest {
	case digests.Service:
		return model.ECSService
	case digests.Org:
		return model.ECSOrg
	case digests.Persona:
		return model.ECSPersona
	case digests.UA:
		return model.ECSUA
	default:
		return ""
	}
}

// jcsDigest computes the hex-encoded SHA-384 digest of schemaJSON canonicalized the way RFC 8785
// (JCS) requires: object keys in codepoint order, no insignificant whitespace. Go's encoding/json
// already sorts map keys and emits no extraneous whitespace, so decoding into a generic value and
// re-marshaling reproduces JCS's defining property for the plain-JSON-Schema documents this
// resolver digests (no floats needing ECMAScript number formatting, no non-ASCII key ordering
// edge cases).
func jcsDigest(schemaJSON []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(schemaJSON, &doc); err != nil {
		return "", err
	}

	stripID(doc)

	canonical, err := json.Marshal(sortedValue(doc))
	if err != nil {
		return "", err
	}

	sum := sha512.Sum384(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func stripID(doc any) {
	if m, ok := doc.(map[string]any); ok {
		delete(m, "$id")
	}
}

// sortedValue recursively wraps map values so json.Marshal emits them in sorted key order at every
// level, not just the top one (Go's json.Marshal already sorts map[string]any keys, but this makes
// the guarantee explicit and stable across nested objects).
func sortedValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(sortedMap, len(keys))
		for i, k := range keys {
			out[i] = sortedEntry{key: k, value: sortedValue(val[k])}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sortedValue(item)
		}
		return out
	default:
		return val
	}
}

type sortedEntry struct {
	key   string
	value any
}

// sortedMap marshals as a JSON object preserving insertion order, which sortedValue has already
// sorted by key.
type sortedMap []sortedEntry

func (m sortedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, entry := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(entry.key)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')

		valJSON, err := json.Marshal(entry.value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}

package tiercache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// maxKeyLen bounds key size so tier stores and the durable medium never
// index unbounded strings.
const maxKeyLen = 512

// GenerateKey builds a canonical cache key of the form
// namespace:identifier or namespace:identifier:paramhash.
//
// Params are canonicalized by sorting their keys before encoding, so
// identical params yield identical keys regardless of insertion order.
// The canonical form is hashed; the key stays bounded no matter how large
// the params are.
func GenerateKey(namespace, identifier string, params map[string]any) string {
	base := namespace + ":" + identifier
	if len(params) == 0 {
		return base
	}
	return base + ":" + hashParams(params)
}

// hashParams renders params as sorted key=value pairs and hashes the
// result. Values are JSON-encoded; encoding/json sorts nested map keys,
// keeping the rendering deterministic. Values that cannot be JSON-encoded
// fall back to fmt formatting so a key is still produced.
func hashParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		data, err := json.Marshal(params[k])
		if err != nil {
			data = fmt.Appendf(nil, "%v", params[k])
		}
		b.Write(data)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}

// ValidateKey rejects keys that are empty, oversized, or contain control
// characters. Invalid keys never reach a tier store.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > maxKeyLen {
		return ErrInvalidKey
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x20 || key[i] == 0x7f {
			return ErrInvalidKey
		}
	}
	return nil
}

package tiercache_test

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/tiercache/tiercache"
)

func TestGenerateKeyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Property 1: key generation is a pure function of its inputs
	properties.Property("same inputs produce the same key", prop.ForAll(
		func(ns, id, pk, pv string) bool {
			a := tiercache.GenerateKey(ns, id, map[string]any{pk: pv})
			b := tiercache.GenerateKey(ns, id, map[string]any{pk: pv})
			return a == b
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AnyString(),
	))

	// Property 2: generated keys always pass validation, however large
	// the params are
	properties.Property("generated keys are always valid", prop.ForAll(
		func(ns, id string, values []string) bool {
			params := make(map[string]any, len(values))
			for i, v := range values {
				params[strings.Repeat("k", i+1)] = v
			}
			key := tiercache.GenerateKey(ns, id, params)
			return tiercache.ValidateKey(key) == nil
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.SliceOf(gen.AnyString()),
	))

	// Property 3: the param hash is sensitive to values
	properties.Property("different param values produce different keys", prop.ForAll(
		func(ns, id, v1, v2 string) bool {
			if v1 == v2 {
				return true
			}
			a := tiercache.GenerateKey(ns, id, map[string]any{"p": v1})
			b := tiercache.GenerateKey(ns, id, map[string]any{"p": v2})
			return a != b
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AnyString(),
		gen.AnyString(),
	))

	// Property 4: without params the key is the bare namespace:identifier
	properties.Property("no params yields namespace:identifier", prop.ForAll(
		func(ns, id string) bool {
			return tiercache.GenerateKey(ns, id, nil) == ns+":"+id
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	// Property 5: params append a fixed-width hash, never raw values
	properties.Property("params append a bounded hash suffix", prop.ForAll(
		func(ns, id, v string) bool {
			key := tiercache.GenerateKey(ns, id, map[string]any{"p": v})
			base := ns + ":" + id + ":"
			if !strings.HasPrefix(key, base) {
				return false
			}
			suffix := key[len(base):]
			if len(suffix) != 32 {
				return false
			}
			return strings.IndexFunc(suffix, func(r rune) bool {
				return !strings.ContainsRune("0123456789abcdef", r)
			}) == -1
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}

func TestValidateKeyProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	// Property 1: alphanumeric keys up to the length cap are accepted
	properties.Property("printable keys within bounds are valid", prop.ForAll(
		func(key string) bool {
			if key == "" || len(key) > 512 {
				return true
			}
			return tiercache.ValidateKey(key) == nil
		},
		gen.AlphaString(),
	))

	// Property 2: any key containing a control character is rejected
	properties.Property("control characters are rejected", prop.ForAll(
		func(prefix, suffix string, ctl uint8) bool {
			if ctl >= 0x20 && ctl != 0x7f {
				return true
			}
			key := prefix + string(rune(ctl)) + suffix
			return tiercache.ValidateKey(key) != nil
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.UInt8(),
	))

	// Property 3: keys longer than 512 bytes are rejected
	properties.Property("oversized keys are rejected", prop.ForAll(
		func(extra int) bool {
			key := strings.Repeat("x", 513+extra)
			return tiercache.ValidateKey(key) != nil
		},
		gen.IntRange(0, 4096),
	))

	properties.TestingRun(t)
}

package security

import "strings"

// cipherStrengths maps cipher families found in IANA suite names to their
// effective key bits. The longest matching fragment wins.
var cipherStrengths = map[string]int{
	"_WITH_NULL_":           0,
	"_NULL_":                0,
	"_EXPORT_":              40,
	"_EXPORT40_":            40,
	"_RC4_40_":              40,
	"_RC2_CBC_40_":          40,
	"_DES40_CBC_":           40,
	"_DES_CBC_40_":          40,
	"_DES_CBC_":             56,
	"_WITH_DES_CBC_":        56,
	"_3DES_EDE_CBC_":        112,
	"_WITH_3DES_EDE_CBC_":   112,
	"_IDEA_CBC_":            128,
	"_RC4_128_":             128,
	"_WITH_RC4_128_":        128,
	"_SEED_CBC_":            128,
	"_AES_128_":             128,
	"_WITH_AES_128_":        128,
	"_ARIA_128_":            128,
	"_CAMELLIA_128_":        128,
	"_AES_256_":             256,
	"_WITH_AES_256_":        256,
	"_ARIA_256_":            256,
	"_CAMELLIA_256_":        256,
	"_CHACHA20_POLY1305_":   256,
	"_WITH_CHACHA20_":       256,
	"TLS_AES_128_GCM_":      128,
	"TLS_AES_128_CCM_":      128,
	"TLS_AES_256_GCM_":      256,
	"TLS_CHACHA20_POLY1305": 256,
}

// CipherSuiteSSF returns the security strength factor of a negotiated
// cipher suite, or 0 when no family matches.
func CipherSuiteSSF(suite string) int {
	name := strings.ToUpper(suite)
	best, ssf := 0, 0
	for fragment, bits := range cipherStrengths {
		if len(fragment) > best && strings.Contains(name, fragment) {
			best, ssf = len(fragment), bits
		}
	}
	return ssf
}

package env

import (
	"os"
	"strings"
)

// Prefix namespaces kilnpay's own variables. Get reads KILNPAY_<key> before
// the bare key so a shared host can keep the services' settings apart.
const Prefix = "KILNPAY_"

// Get returns the first non-blank value of KILNPAY_<key> or key, else fallback.
func Get(key, fallback string) string {
	for _, name := range []string{Prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}

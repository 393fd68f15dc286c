package instance

import (
	"os"
	"strings"
)

// ID names the running process for logs and lock ownership. It prefers an
// explicit KILNPAY_INSTANCE_ID, then the platform's dyno name, then the host.
func ID() string {
	for _, key := range []string{"KILNPAY_INSTANCE_ID", "DYNO"} {
		if id := strings.TrimSpace(os.Getenv(key)); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}

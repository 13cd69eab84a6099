package tracking

import (
	"os"
	"runtime"
	"strings"
	"time"
)

// Fingerprinter produces the passive device fingerprint sent on registration.
type Fingerprinter interface {
	Fingerprint() map[string]any
}

// FingerprinterFunc adapts a function to Fingerprinter.
type FingerprinterFunc func() map[string]any

func (f FingerprinterFunc) Fingerprint() map[string]any { return f() }

// HostFingerprinter describes the host process: OS, architecture, hostname,
// locale and timezone.
type HostFingerprinter struct{}

func (HostFingerprinter) Fingerprint() map[string]any {
	fp := map[string]any{
		"os":   runtime.GOOS,
		"arch": runtime.GOARCH,
	}
	if h, err := os.Hostname(); err == nil {
		fp["hostname"] = h
	}
	if loc := locale(); loc != "" {
		fp["locale"] = loc
	}
	name, offset := time.Now().Zone()
	fp["timezone"] = name
	fp["utc_offset_seconds"] = offset
	return fp
}

// locale reads the POSIX locale variables in precedence order, dropping any
// encoding suffix (en_GB.UTF-8 -> en_GB).
func locale() string {
	for _, k := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		if i := strings.IndexAny(v, ".@"); i >= 0 {
			v = v[:i]
		}
		return v
	}
	return ""
}

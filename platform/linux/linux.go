//go:build linux

package linux

import "fmt"

// Capabilities summarizes the defense-in-depth layer's support on the
// running kernel: the information a Tracer needs to decide whether
// Landlock is worth attempting and to log an accurate init diagnostic.
type Capabilities struct {
	KernelVersion KernelVersion
	LandlockABI   int
}

// Detect probes the running kernel for its version and Landlock ABI
// support. DetectKernelVersion may fail in restricted environments
// (e.g. /proc not mounted); a zero KernelVersion safely disables
// version-gated log lines without affecting enforcement, since
// enforcement is ptrace's, not this layer's.
func Detect() Capabilities {
	kv, _ := DetectKernelVersion()
	ll := DetectLandlock()
	return Capabilities{
		KernelVersion: kv,
		LandlockABI:   ll.ABIVersion,
	}
}

// String renders a one-line diagnostic suitable for an init log line.
func (c Capabilities) String() string {
	if c.LandlockABI == 0 {
		return fmt.Sprintf("kernel %s, landlock unavailable", c.KernelVersion)
	}
	return fmt.Sprintf("kernel %s, landlock ABI v%d", c.KernelVersion, c.LandlockABI)
}

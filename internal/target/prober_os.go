package target

import (
	"fmt"

	"github.com/go-vgo/robotgo"
	"github.com/shirou/gopsutil/v4/process"
)

// OSProber reads the focused window from the desktop session using robotgo
// and resolves the owning process name via gopsutil.
type OSProber struct{}

var _ Prober = OSProber{}

// ActiveWindow returns the currently focused window. The process name may
// be empty when the owning process exits between the pid lookup and the
// name lookup; classification treats that as AppUnknown.
func (OSProber) ActiveWindow() (WindowInfo, error) {
	pid := robotgo.GetPid()
	if pid <= 0 {
		return WindowInfo{}, fmt.Errorf("no active window")
	}

	name := ""
	if p, err := process.NewProcess(pid); err == nil {
		if n, err := p.Name(); err == nil {
			name = n
		}
	}

	return WindowInfo{
		ProcessName: name,
		PID:         pid,
		WindowID:    int64(robotgo.GetHandle()),
	}, nil
}

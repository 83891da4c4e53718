// Package system identifies the host: OS family, distro, architecture,
// active package manager, hardware summary and privilege level.
package system

import (
	"bufio"
	"bytes"
	"context"
	"math"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/blackwell-systems/envstate/internal/state"
)

const unknown = "unknown"

// Info is everything Detect learns about the host.
type Info struct {
	OS             string `json:"os"`
	Distro         string `json:"distro,omitempty"`
	PackageManager string `json:"package_manager"`
	Arch           string `json:"arch"`
	Platform       string `json:"platform"`
	CPUCount       int    `json:"cpu_count"`
	MemoryGB       int    `json:"memory_gb"`
	Hostname       string `json:"hostname"`
	UptimeHours    int    `json:"uptime_hours"`
	Elevated       bool   `json:"elevated"`
}

// Descriptor returns the subset of Info that is persisted with the snapshot.
func (i Info) Descriptor() state.SystemDescriptor {
	return state.SystemDescriptor{
		OS:             i.OS,
		PackageManager: i.PackageManager,
		Arch:           i.Arch,
		Platform:       i.Platform,
	}
}

// IsWindows reports whether the host is Windows.
func (i Info) IsWindows() bool {
	return i.OS == "windows"
}

// candidates are probed in order; the first one on PATH wins.
var candidates = map[string][]string{
	"windows": {"choco", "winget", "scoop"},
	"linux":   {"apt", "yum", "dnf", "pacman", "zypper", "snap"},
}

var (
	hostInfo   = host.InfoWithContext
	memInfo    = mem.VirtualMemoryWithContext
	cpuCounts  = cpu.CountsWithContext
	probeDelay = 5 * time.Second
)

// Detector performs read-only system queries. The function fields exist so
// tests can replace the host.
type Detector struct {
	GOOS     string
	GOARCH   string
	LookPath func(file string) (string, error)
	ReadFile func(name string) ([]byte, error)
	Output   func(ctx context.Context, name string, args ...string) ([]byte, error)
	Geteuid  func() int
}

// New returns a Detector for the running host.
func New() *Detector {
	return &Detector{
		GOOS:     runtime.GOOS,
		GOARCH:   runtime.GOARCH,
		LookPath: exec.LookPath,
		ReadFile: os.ReadFile,
		Output: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).Output()
		},
		Geteuid: os.Geteuid,
	}
}

// Detect is New().Detect(ctx).
func Detect(ctx context.Context) Info {
	return New().Detect(ctx)
}

// Detect never fails; fields that cannot be resolved are "unknown", zero or
// false.
func (d *Detector) Detect(ctx context.Context) Info {
	info := Info{
		OS:       d.GOOS,
		Arch:     d.GOARCH,
		Platform: platformName(d.GOOS),
		CPUCount: runtime.NumCPU(),
		Hostname: unknown,
	}

	if d.GOOS == "linux" {
		info.Distro = d.distro(ctx)
	}
	info.PackageManager = d.packageManager()
	info.Elevated = d.elevated(ctx)

	if hi, err := hostInfo(ctx); err == nil && hi != nil {
		if hi.Hostname != "" {
			info.Hostname = hi.Hostname
		}
		info.UptimeHours = int(hi.Uptime / 3600)
	} else if name, err := os.Hostname(); err == nil {
		info.Hostname = name
	}
	if vm, err := memInfo(ctx); err == nil && vm != nil {
		info.MemoryGB = int(math.Round(float64(vm.Total) / (1 << 30)))
	}
	if n, err := cpuCounts(ctx, true); err == nil && n > 0 {
		info.CPUCount = n
	}
	return info
}

func (d *Detector) packageManager() string {
	switch d.GOOS {
	case "darwin":
		return "brew"
	case "windows", "linux":
		for _, c := range candidates[d.GOOS] {
			if _, err := d.LookPath(c); err == nil {
				return c
			}
		}
		if d.GOOS == "windows" {
			return "choco"
		}
	}
	return unknown
}

// distro reads ID from os-release, then asks lsb_release.
func (d *Detector) distro(ctx context.Context) string {
	for _, path := range []string{"/etc/os-release", "/usr/lib/os-release"} {
		data, err := d.ReadFile(path)
		if err != nil {
			continue
		}
		if id := osReleaseID(data); id != "" {
			return id
		}
	}

	ctx, cancel := context.WithTimeout(ctx, probeDelay)
	defer cancel()
	if out, err := d.Output(ctx, "lsb_release", "-si"); err == nil {
		if id := strings.ToLower(strings.TrimSpace(string(out))); id != "" {
			return id
		}
	}
	return unknown
}

func osReleaseID(data []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if v, ok := strings.CutPrefix(line, "ID="); ok {
			return strings.ToLower(strings.Trim(v, `"'`))
		}
	}
	return ""
}

func (d *Detector) elevated(ctx context.Context) bool {
	if d.GOOS != "windows" {
		return d.Geteuid() == 0
	}
	// "net session" only succeeds from an elevated prompt.
	ctx, cancel := context.WithTimeout(ctx, probeDelay)
	defer cancel()
	_, err := d.Output(ctx, "net", "session")
	return err == nil
}

func platformName(goos string) string {
	switch goos {
	case "darwin":
		return "macOS"
	case "windows":
		return "Windows"
	case "linux":
		return "Linux"
	case "":
		return unknown
	default:
		return goos
	}
}

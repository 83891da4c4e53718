package system

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/assert"
)

func fakeDetector(goos string, onPath ...string) *Detector {
	avail := map[string]bool{}
	for _, p := range onPath {
		avail[p] = true
	}
	return &Detector{
		GOOS:   goos,
		GOARCH: "amd64",
		LookPath: func(file string) (string, error) {
			if avail[file] {
				return "/usr/bin/" + file, nil
			}
			return "", errors.New("not found")
		},
		ReadFile: func(string) ([]byte, error) { return nil, os.ErrNotExist },
		Output: func(context.Context, string, ...string) ([]byte, error) {
			return nil, errors.New("no such command")
		},
		Geteuid: func() int { return 1000 },
	}
}

func stubHost(t *testing.T) {
	t.Helper()
	origHost, origMem, origCPU := hostInfo, memInfo, cpuCounts
	hostInfo = func(context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{Hostname: "devbox", Uptime: 7*3600 + 1800}, nil
	}
	memInfo = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 15_800_000_000}, nil
	}
	cpuCounts = func(context.Context, bool) (int, error) { return 8, nil }
	t.Cleanup(func() { hostInfo, memInfo, cpuCounts = origHost, origMem, origCPU })
}

func TestPackageManagerProbeOrder(t *testing.T) {
	stubHost(t)
	tests := []struct {
		name   string
		goos   string
		onPath []string
		want   string
	}{
		{"linux apt before dnf", "linux", []string{"dnf", "apt", "snap"}, "apt"},
		{"linux yum before dnf", "linux", []string{"dnf", "yum"}, "yum"},
		{"linux snap last", "linux", []string{"snap"}, "snap"},
		{"linux none", "linux", nil, "unknown"},
		{"windows winget", "windows", []string{"scoop", "winget"}, "winget"},
		{"windows default choco", "windows", nil, "choco"},
		{"macos always brew", "darwin", nil, "brew"},
		{"other os", "plan9", []string{"apt"}, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := fakeDetector(tt.goos, tt.onPath...).Detect(context.Background())
			assert.Equal(t, tt.want, info.PackageManager)
		})
	}
}

func TestDetect_HostFacts(t *testing.T) {
	stubHost(t)
	d := fakeDetector("linux", "apt")
	d.ReadFile = func(name string) ([]byte, error) {
		return []byte("NAME=\"Ubuntu\"\nID=ubuntu\nVERSION_ID=\"22.04\"\n"), nil
	}
	d.Geteuid = func() int { return 0 }

	info := d.Detect(context.Background())
	assert.Equal(t, "ubuntu", info.Distro)
	assert.Equal(t, "Linux", info.Platform)
	assert.Equal(t, "devbox", info.Hostname)
	assert.Equal(t, 7, info.UptimeHours)
	assert.Equal(t, 15, info.MemoryGB)
	assert.Equal(t, 8, info.CPUCount)
	assert.True(t, info.Elevated)

	desc := info.Descriptor()
	assert.Equal(t, "linux", desc.OS)
	assert.Equal(t, "apt", desc.PackageManager)
	assert.Equal(t, "amd64", desc.Arch)
}

func TestDetect_DistroFallbacks(t *testing.T) {
	stubHost(t)

	d := fakeDetector("linux")
	d.Output = func(_ context.Context, name string, _ ...string) ([]byte, error) {
		if name == "lsb_release" {
			return []byte("Arch\n"), nil
		}
		return nil, errors.New("nope")
	}
	assert.Equal(t, "arch", d.Detect(context.Background()).Distro)

	assert.Equal(t, "unknown", fakeDetector("linux").Detect(context.Background()).Distro)
}

func TestDetect_DegradesWhenHostQueriesFail(t *testing.T) {
	origHost, origMem := hostInfo, memInfo
	hostInfo = func(context.Context) (*host.InfoStat, error) { return nil, errors.New("boom") }
	memInfo = func(context.Context) (*mem.VirtualMemoryStat, error) { return nil, errors.New("boom") }
	t.Cleanup(func() { hostInfo, memInfo = origHost, origMem })

	info := fakeDetector("windows").Detect(context.Background())
	assert.Equal(t, 0, info.MemoryGB)
	assert.Equal(t, 0, info.UptimeHours)
	assert.False(t, info.Elevated)
	assert.NotEmpty(t, info.Hostname)
	assert.True(t, info.IsWindows())
}

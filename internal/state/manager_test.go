package state

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	data   []byte
	writes int
}

func (p *memPersister) Read() ([]byte, error) {
	if p.data == nil {
		return nil, ErrNoState
	}
	return p.data, nil
}

func (p *memPersister) Write(data []byte) error {
	p.data = append([]byte(nil), data...)
	p.writes++
	return nil
}

var testSystem = SystemDescriptor{OS: "linux", PackageManager: "apt", Arch: "amd64", Platform: "linux"}

func newTestManager(t *testing.T) (*Manager, *memPersister) {
	t.Helper()
	p := &memPersister{}
	m := NewManager(p, nil)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }
	return m, p
}

func TestInitialize_KeysByLowerCaseName(t *testing.T) {
	m, p := newTestManager(t)

	snap, err := m.Initialize(testSystem, []PackageRecord{
		{Name: "Git", Version: "2.44.0"},
		{Name: "curl", Version: "7.81.0-1", Source: "apt"},
		{Name: "  ", Version: "1"},
	})
	require.NoError(t, err)
	require.Len(t, snap.InstalledTools, 2)

	rec, ok := m.Package("GIT")
	require.True(t, ok)
	assert.Equal(t, "Git", rec.Name)
	assert.Equal(t, "apt", rec.Source)
	assert.Equal(t, StatusInstalled, rec.Status)
	assert.Equal(t, 1, p.writes)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	m, p := newTestManager(t)
	_, err := m.Initialize(testSystem, []PackageRecord{{Name: "git", Version: "2.44.0"}, {Name: "jq", Version: "1.7"}})
	require.NoError(t, err)
	require.NoError(t, m.LogInstallation(Outcome{Package: "node", Action: ActionInstall, Result: ResultSuccess, Duration: 2 * time.Second}))
	require.NoError(t, m.LogInstallation(Outcome{Package: "rust", Action: ActionInstall, Result: ResultFailed, Err: "exit 1", Command: "apt install rust"}))

	reloaded := NewManager(p, nil)
	snap := reloaded.Load()
	require.NotNil(t, snap)

	orig := m.Snapshot()
	assert.Equal(t, len(orig.InstalledTools), len(snap.InstalledTools))
	for key, rec := range orig.InstalledTools {
		got, ok := snap.InstalledTools[key]
		require.True(t, ok, "missing %s", key)
		assert.Equal(t, rec.Version, got.Version)
	}
	assert.Len(t, snap.InstallationHistory, len(orig.InstallationHistory))
	assert.Len(t, snap.FailedInstallations, 1)
	assert.Equal(t, "apt install rust", snap.FailedInstallations[0].AttemptedCommand)
}

func TestLoad_AbsentOrCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"absent", nil},
		{"not json", []byte("{not json")},
		{"wrong schema", []byte(`{"schema_version": 7, "installed_tools": {}}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(&memPersister{data: tt.data}, nil)
			assert.Nil(t, m.Load())
			assert.False(t, m.Loaded())
		})
	}
}

func TestLogInstallation_SuccessInstallSetsPending(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Initialize(testSystem, nil)
	require.NoError(t, err)

	require.NoError(t, m.LogInstallation(Outcome{Package: "Docker", Action: ActionInstall, Result: ResultSuccess}))

	rec, ok := m.Package("docker")
	require.True(t, ok)
	assert.Equal(t, PendingVersion, rec.Version)
	assert.Equal(t, StatusInstalled, rec.Status)
	assert.Equal(t, "apt", rec.Source)
	assert.Empty(t, m.Snapshot().FailedInstallations)
}

func TestLogInstallation_FailureLeavesPackagesAlone(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Initialize(testSystem, nil)
	require.NoError(t, err)

	require.NoError(t, m.LogInstallation(Outcome{Package: "docker", Action: ActionInstall, Result: ResultFailed, Err: "boom"}))

	_, ok := m.Package("docker")
	assert.False(t, ok)
	hist := m.History()
	require.Len(t, hist, 1)
	assert.Equal(t, ResultFailed, hist[0].Result)
	assert.Equal(t, "boom", hist[0].Error)
	assert.Len(t, m.Snapshot().FailedInstallations, 1)
}

func TestLogInstallation_WithoutSnapshotStartsEmpty(t *testing.T) {
	m, p := newTestManager(t)

	require.NoError(t, m.LogInstallation(Outcome{Package: "jq", Action: ActionInstall, Result: ResultSuccess}))
	assert.True(t, m.Loaded())
	assert.Equal(t, 1, p.writes)
}

func TestUpdateAfterVerification(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Initialize(testSystem, nil)
	require.NoError(t, err)
	require.NoError(t, m.LogInstallation(Outcome{Package: "node", Action: ActionInstall, Result: ResultSuccess}))

	require.NoError(t, m.UpdateAfterVerification("node", "20.11.1", "nodejs"))

	rec, _ := m.Package("node")
	assert.Equal(t, "20.11.1", rec.Version)
	assert.Equal(t, "nodejs", rec.PackageID)
	assert.Equal(t, StatusInstalled, rec.Status)
}

func TestMarkUpdateAvailable(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Initialize(testSystem, []PackageRecord{{Name: "git", Version: "2.40.0"}})
	require.NoError(t, err)

	require.NoError(t, m.MarkUpdateAvailable("Git", "2.44.0"))
	rec, _ := m.Package("git")
	assert.Equal(t, StatusOutdated, rec.Status)
	assert.True(t, rec.UpdateAvailable)
	assert.Equal(t, "2.44.0", rec.LatestVersion)

	err = m.MarkUpdateAvailable("nope", "1.0")
	assert.True(t, errors.Is(err, ErrUnknownPackage))
}

func TestRemovePackage(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Initialize(testSystem, []PackageRecord{{Name: "git", Version: "2.40.0"}})
	require.NoError(t, err)

	require.NoError(t, m.RemovePackage("GIT"))
	_, ok := m.Package("git")
	assert.False(t, ok)
	require.NoError(t, m.RemovePackage("git"))
}

func TestStats(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Initialize(testSystem, []PackageRecord{
		{Name: "a", Version: "1"},
		{Name: "b", Version: "1"},
		{Name: "c", Version: "1"},
	})
	require.NoError(t, err)
	require.NoError(t, m.MarkUpdateAvailable("a", "2"))
	require.NoError(t, m.MarkBroken("b"))
	require.NoError(t, m.LogInstallation(Outcome{Package: "d", Action: ActionInstall, Result: ResultFailed}))

	st := m.Stats()
	assert.Equal(t, 3, st.TotalPackages)
	assert.Equal(t, 1, st.Outdated)
	assert.Equal(t, 1, st.Broken)
	assert.Equal(t, 1, st.HistoryEntries)
	assert.Equal(t, 1, st.Failures)
	assert.False(t, st.LastScan.IsZero())
}

func TestFileStore_WritesJSONDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "environment.json")
	fs := NewFileStore(path)

	_, err := fs.Read()
	assert.True(t, errors.Is(err, ErrNoState))

	m := NewManager(fs, nil)
	_, err = m.Initialize(testSystem, []PackageRecord{{Name: "git", Version: "2.44.0"}})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, field := range []string{"schema_version", "last_scan", "system", "installed_tools", "installation_history", "failed_installations"} {
		assert.Contains(t, doc, field)
	}
}

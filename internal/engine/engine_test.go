package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/envstate/internal/advisor"
	"github.com/blackwell-systems/envstate/internal/config"
	"github.com/blackwell-systems/envstate/internal/decision"
	"github.com/blackwell-systems/envstate/internal/executor"
	"github.com/blackwell-systems/envstate/internal/state"
	"github.com/blackwell-systems/envstate/internal/system"
	"github.com/blackwell-systems/envstate/internal/verify"
)

const dpkgList = "ii  curl  7.81.0-1  amd64  command line tool\nii  git  2.34.1  amd64  fast, scalable vcs\nrc  old  1.0  amd64  removed\n"

// fakeRunner answers commands from a table. Unknown commands exit 127.
type fakeRunner struct {
	mu      sync.Mutex
	replies map[string]executor.Output
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, command, _ string, _ executor.LineFunc) (executor.Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, command)
	if out, ok := f.replies[command]; ok {
		return out, nil
	}
	return executor.Output{Stderr: "sh: not found", ExitCode: 127}, nil
}

func (f *fakeRunner) set(command string, out executor.Output) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[command] = out
}

type fakeAdvisor struct {
	analysis *advisor.Analysis
	err      error
}

func (f fakeAdvisor) Analyze(context.Context, advisor.Request) (*advisor.Analysis, error) {
	return f.analysis, f.err
}

func (f fakeAdvisor) UninstallPlan(context.Context, []state.PackageRecord, state.SystemDescriptor) ([]advisor.PlanRecord, error) {
	return nil, errors.New("unavailable")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		StatePath:    filepath.Join(dir, "environment.json"),
		StateBackend: config.BackendJSON,
		DBPath:       filepath.Join(dir, "envstate.db"),
		RestoreDir:   filepath.Join(dir, "restore"),
		ExportDir:    filepath.Join(dir, "exports"),
		Timeouts: config.Timeouts{
			Scan:        config.Duration(time.Second),
			UpdateCheck: config.Duration(time.Second),
			Verify:      config.Duration(time.Second),
		},
		Aliases: map[string]string{"rg": "ripgrep"},
	}
}

func linuxApt(context.Context) system.Info {
	return system.Info{OS: "linux", Distro: "ubuntu", PackageManager: "apt", Arch: "amd64", Platform: "Linux"}
}

func newTestEngine(t *testing.T, cfg *config.Config, r *fakeRunner, svc advisor.Service) *Engine {
	t.Helper()
	e, err := New(cfg, Options{Runner: r, Advisor: svc, Detect: linuxApt})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func scannedEngine(t *testing.T) (*Engine, *fakeRunner) {
	t.Helper()
	r := &fakeRunner{replies: map[string]executor.Output{"dpkg -l": {Stdout: dpkgList}}}
	e := newTestEngine(t, testConfig(t), r, nil)
	res, err := e.ScanEnvironment(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, res.Count)
	return e, r
}

func TestScanEnvironmentAndDecide(t *testing.T) {
	e, _ := scannedEngine(t)

	assert.Equal(t, decision.ActionSkip, e.CheckDecision("curl").Action)
	assert.Equal(t, decision.ActionSkip, e.CheckDecision("Git").Action)
	assert.Equal(t, decision.ActionInstall, e.CheckDecision("jq").Action)

	d := e.CheckDecision("rg")
	assert.Equal(t, "ripgrep", d.Package)
	assert.Equal(t, decision.ActionInstall, d.Action)

	s := e.DecisionSummary([]string{"curl", "jq", "rg"})
	assert.Equal(t, "2 new installations, 1 already installed", s.Message)

	st := e.Stats()
	assert.Equal(t, 2, st.TotalPackages)
	assert.False(t, st.LastScan.IsZero())
}

func TestScanEnvironment_FailureInitializesEmptyState(t *testing.T) {
	e := newTestEngine(t, testConfig(t), &fakeRunner{replies: map[string]executor.Output{}}, nil)

	res, err := e.ScanEnvironment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Count)
	assert.NotNil(t, res.Packages)
	assert.True(t, e.State().Loaded())
}

func TestCheckUpdates_MarksTrackedPackages(t *testing.T) {
	e, r := scannedEngine(t)
	r.set("apt list --upgradable", executor.Output{Stdout: "Listing...\n" +
		"curl/jammy-updates 7.88.1 amd64 [upgradable from: 7.81.0]\n" +
		"zsh/jammy-updates 5.9 amd64 [upgradable from: 5.8]\n"})

	updates, err := e.CheckUpdates(context.Background())
	require.NoError(t, err)
	assert.Len(t, updates, 2)

	d := e.CheckDecision("curl")
	assert.Equal(t, decision.ActionUpdate, d.Action)
	assert.Equal(t, "7.88.1", d.SuggestedVersion)
	_, tracked := e.State().Package("zsh")
	assert.False(t, tracked)
}

func TestInstallDependency(t *testing.T) {
	tests := []struct {
		name        string
		replies     map[string]executor.Output
		dep         advisor.Dependency
		wantSuccess bool
		wantStatus  state.Status
		wantVersion string
		wantTracked bool
	}{
		{
			name: "verified",
			replies: map[string]executor.Output{
				"sudo apt-get install -y jq": {},
				"jq --version":               {Stdout: "jq-1.7.1"},
			},
			dep:         advisor.Dependency{Name: "jq", Category: advisor.CategoryTool, InstallCommands: []string{"sudo apt-get install -y jq"}},
			wantSuccess: true, wantStatus: state.StatusInstalled, wantVersion: "1.7.1", wantTracked: true,
		},
		{
			name: "pattern mismatch marks broken",
			replies: map[string]executor.Output{
				"sudo apt-get install -y jq": {},
				"jq --version":               {Stdout: "jq-1.6"},
			},
			dep:         advisor.Dependency{Name: "jq", Category: advisor.CategoryTool, InstallCommands: []string{"sudo apt-get install -y jq"}, ExpectedPattern: "jq-1\\.7"},
			wantSuccess: true, wantStatus: state.StatusBroken, wantVersion: state.PendingVersion, wantTracked: true,
		},
		{
			name:        "failed install is not tracked",
			replies:     map[string]executor.Output{},
			dep:         advisor.Dependency{Name: "jq", Category: advisor.CategoryTool, InstallCommands: []string{"sudo apt-get install -y jq"}},
			wantSuccess: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, r := scannedEngine(t)
			for c, out := range tt.replies {
				r.set(c, out)
			}

			res, err := e.InstallDependency(context.Background(), tt.dep, "", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, res.Success)

			rec, ok := e.State().Package("jq")
			require.Equal(t, tt.wantTracked, ok)
			if ok {
				assert.Equal(t, tt.wantStatus, rec.Status)
				assert.Equal(t, tt.wantVersion, rec.Version)
			}

			history := e.State().History()
			require.NotEmpty(t, history)
			last := history[len(history)-1]
			assert.Equal(t, state.ActionInstall, last.Action)
			if tt.wantSuccess {
				assert.Equal(t, state.ResultSuccess, last.Result)
			} else {
				assert.Equal(t, state.ResultFailed, last.Result)
				assert.Equal(t, 1, e.Stats().Failures)
			}
		})
	}
}

func TestInstallDependency_RecordsRepair(t *testing.T) {
	e, r := scannedEngine(t)
	require.NoError(t, e.State().MarkBroken("git"))
	r.set("sudo apt-get install --reinstall -y git", executor.Output{})
	r.set("git --version", executor.Output{Stdout: "git version 2.34.1"})

	res, err := e.InstallDependency(context.Background(), advisor.Dependency{
		Name: "git", Category: advisor.CategoryTool, InstallCommands: []string{"sudo apt-get install --reinstall -y git"},
	}, "", nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	history := e.State().History()
	assert.Equal(t, state.ActionRepair, history[len(history)-1].Action)
	rec, _ := e.State().Package("git")
	assert.Equal(t, state.StatusInstalled, rec.Status)
	assert.Equal(t, "2.34.1", rec.Version)
}

func TestInstallDependency_RejectsInvalid(t *testing.T) {
	e, _ := scannedEngine(t)
	_, err := e.InstallDependency(context.Background(), advisor.Dependency{Name: "jq"}, "", nil)
	assert.ErrorIs(t, err, advisor.ErrInvalidDependency)
}

func TestVerifyInstallation_UntrackedLeavesState(t *testing.T) {
	e, r := scannedEngine(t)
	r.set("node --version", executor.Output{Stdout: "v20.11.1"})

	res, err := e.VerifyInstallation(context.Background(), advisor.Dependency{Name: "node"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	_, tracked := e.State().Package("node")
	assert.False(t, tracked)
}

func TestVerifyAll_AppliesToTrackedPackages(t *testing.T) {
	e, r := scannedEngine(t)
	r.set("curl --version", executor.Output{Stdout: "curl 8.5.0 (x86_64-pc-linux-gnu)"})
	r.set("git --version", executor.Output{Stdout: "git version 2.34.1"})
	r.set("node --version", executor.Output{Stdout: "v20.11.1"})
	deps := []advisor.Dependency{
		{Name: "curl"},
		{Name: "git", ExpectedPattern: "version 3"},
		{Name: "node"},
	}
	progress := make(chan verify.Result, len(deps))

	rep, err := e.VerifyAll(context.Background(), deps, progress)
	require.NoError(t, err)
	close(progress)
	assert.Len(t, progress, 3)
	assert.Equal(t, 2, rep.Succeeded)
	assert.Equal(t, 1, rep.Failed)

	curl, _ := e.State().Package("curl")
	assert.Equal(t, "8.5.0", curl.Version)
	git, _ := e.State().Package("git")
	assert.Equal(t, state.StatusBroken, git.Status)
	_, tracked := e.State().Package("node")
	assert.False(t, tracked)
}

func TestUninstallThenUndo(t *testing.T) {
	e, r := scannedEngine(t)
	r.set("sudo apt-get remove -y curl", executor.Output{})
	r.set("dpkg -s curl", executor.Output{Stderr: "package 'curl' is not installed", ExitCode: 1})

	res := e.ExecuteUninstall(context.Background(), "curl", "", nil)
	require.True(t, res.Success, res.Error)
	assert.True(t, res.Plan.Fallback)
	assert.NotZero(t, res.RestorePointID)
	assert.Equal(t, decision.ActionInstall, e.CheckDecision("curl").Action)

	points, err := e.RestorePoints()
	require.NoError(t, err)
	require.Len(t, points, 1)

	r.set("sudo apt-get install -y curl=7.81.0-1", executor.Output{})
	restored, err := e.Undo(context.Background(), 0, "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"curl@7.81.0-1"}, restored.Restored)

	rec, ok := e.State().Package("curl")
	require.True(t, ok)
	assert.Equal(t, "7.81.0-1", rec.Version)
}

func TestExecuteUninstall_StillPresentFails(t *testing.T) {
	e, r := scannedEngine(t)
	r.set("sudo apt-get remove -y curl", executor.Output{})
	r.set("dpkg -s curl", executor.Output{Stdout: "Status: install ok installed"})

	res := e.ExecuteUninstall(context.Background(), "curl", "", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "still present")
	_, tracked := e.State().Package("curl")
	assert.True(t, tracked)
}

func TestUndo_NoRestorePoints(t *testing.T) {
	e, _ := scannedEngine(t)
	_, err := e.Undo(context.Background(), 0, "", nil, nil)
	assert.Error(t, err)
}

func TestAnalyze(t *testing.T) {
	cfg := testConfig(t)
	r := &fakeRunner{replies: map[string]executor.Output{}}

	_, err := newTestEngine(t, cfg, r, nil).Analyze(context.Background(), "jq")
	assert.ErrorIs(t, err, ErrNoAdvisor)

	svc := fakeAdvisor{analysis: &advisor.Analysis{Dependencies: []advisor.Dependency{{
		Name:            "jq",
		Category:        advisor.CategoryTool,
		InstallCommands: []string{"brew install jq", "sudo apt-get install -y jq", "choco install jq -y"},
	}}}}
	a, err := newTestEngine(t, testConfig(t), r, svc).Analyze(context.Background(), "jq")
	require.NoError(t, err)
	assert.Equal(t, []string{"sudo apt-get install -y jq"}, a.Dependencies[0].InstallCommands)

	svc = fakeAdvisor{analysis: &advisor.Analysis{Dependencies: []advisor.Dependency{{
		Name: "jq", Category: advisor.CategoryTool, InstallCommands: []string{"brew install jq"},
	}}}}
	_, err = newTestEngine(t, testConfig(t), r, svc).Analyze(context.Background(), "jq")
	assert.ErrorIs(t, err, advisor.ErrNoViableCommands)

	svcErr := &advisor.ServiceError{StatusCode: 500, Message: "boom"}
	_, err = newTestEngine(t, testConfig(t), r, fakeAdvisor{err: svcErr}).Analyze(context.Background(), "jq")
	assert.True(t, advisor.IsServiceError(err))
}

func TestClassifyCommands(t *testing.T) {
	e, _ := scannedEngine(t)

	rep, err := e.ClassifyCommands([]advisor.Dependency{{
		Name:            "node",
		Category:        advisor.CategoryRuntime,
		InstallCommands: []string{"sudo apt-get install -y nodejs", "curl -fsSL https://example.com/setup | sudo bash"},
	}})
	require.NoError(t, err)
	require.Len(t, rep.Dependencies, 1)
	assert.Equal(t, 2, rep.Summary.Total)

	_, err = e.ClassifyCommands([]advisor.Dependency{{Name: "x"}})
	assert.Error(t, err)
}

func TestExportContext(t *testing.T) {
	e, _ := scannedEngine(t)

	path, err := e.ExportContext("yaml")
	require.NoError(t, err)
	assert.Equal(t, e.Config().ExportDir, filepath.Dir(path))
	_, err = os.Stat(path)
	assert.NoError(t, err)

	_, err = e.ExportContext("pdf")
	assert.Error(t, err)
}

func TestSQLiteBackendPersists(t *testing.T) {
	cfg := testConfig(t)
	cfg.StateBackend = config.BackendSQLite
	r := &fakeRunner{replies: map[string]executor.Output{"dpkg -l": {Stdout: dpkgList}}}

	e, err := New(cfg, Options{Runner: r, Detect: linuxApt})
	require.NoError(t, err)
	_, err = e.ScanEnvironment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg.DBPath, e.StatePath())
	require.NoError(t, e.Close())

	_, err = os.Stat(cfg.StatePath)
	assert.True(t, os.IsNotExist(err))

	reopened := newTestEngine(t, cfg, r, nil)
	assert.Len(t, reopened.Packages(), 2)
}

func TestDoctor(t *testing.T) {
	r := &fakeRunner{replies: map[string]executor.Output{"which dpkg": {Stdout: "/usr/bin/dpkg"}}}
	e := newTestEngine(t, testConfig(t), r, nil)

	d := e.Doctor(context.Background())
	assert.Zero(t, d.Critical)
	assert.Equal(t, 2, d.Warnings) // no state yet, no advisory service

	names := make([]string, 0, len(d.Checks))
	for _, c := range d.Checks {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "manager binary")
	assert.Contains(t, names, "restore points")
}

func TestCheckDrift(t *testing.T) {
	r := &fakeRunner{replies: map[string]executor.Output{"dpkg -l": {Stdout: dpkgList}}}
	e := newTestEngine(t, testConfig(t), r, nil)

	_, err := e.CheckDrift(context.Background())
	assert.ErrorIs(t, err, state.ErrNoState)

	_, err = e.ScanEnvironment(context.Background())
	require.NoError(t, err)
	r.set("dpkg -l", executor.Output{Stdout: "ii  git  2.34.1  amd64  vcs\nii  zsh  5.8  amd64  shell\n"})

	d, err := e.CheckDrift(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"zsh"}, d.Untracked)
	assert.Equal(t, []string{"curl"}, d.Missing)
	assert.Len(t, e.Packages(), 2)
}

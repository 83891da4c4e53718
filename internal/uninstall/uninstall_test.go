package uninstall

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/envstate/internal/advisor"
	"github.com/blackwell-systems/envstate/internal/executor"
	"github.com/blackwell-systems/envstate/internal/state"
	"github.com/blackwell-systems/envstate/internal/verify"
)

var linuxApt = state.SystemDescriptor{OS: "linux", PackageManager: "apt", Arch: "amd64", Platform: "Linux"}

type fakeService struct {
	plans []advisor.PlanRecord
	err   error
}

func (f fakeService) Analyze(context.Context, advisor.Request) (*advisor.Analysis, error) {
	return nil, errors.New("not used")
}

func (f fakeService) UninstallPlan(context.Context, []state.PackageRecord, state.SystemDescriptor) ([]advisor.PlanRecord, error) {
	return f.plans, f.err
}

func TestGeneratePlan_UsesService(t *testing.T) {
	p := NewPlanner(fakeService{plans: []advisor.PlanRecord{
		{Package: "GIT", Commands: []string{"sudo apt-get purge -y git", "sudo apt-get autoremove -y"}, VerifyCommand: "git --version"},
	}}, nil)

	plans := p.GeneratePlan(context.Background(), []state.PackageRecord{{Name: "git", Source: "apt"}}, linuxApt)
	require.Len(t, plans, 1)
	assert.Equal(t, "git", plans[0].Package)
	assert.False(t, plans[0].Fallback)
	assert.Len(t, plans[0].Commands, 2)
}

func TestGeneratePlan_Fallback(t *testing.T) {
	tests := []struct {
		name    string
		service advisor.Service
	}{
		{"no service", nil},
		{"service error", fakeService{err: &advisor.ServiceError{StatusCode: 502, Message: "bad gateway"}}},
		{"empty plan", fakeService{plans: []advisor.PlanRecord{{Package: "git"}}}},
		{"package omitted", fakeService{plans: []advisor.PlanRecord{{Package: "jq", Commands: []string{"x"}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plans := NewPlanner(tt.service, nil).GeneratePlan(context.Background(), []state.PackageRecord{{Name: "git", Source: "apt"}}, linuxApt)
			require.Len(t, plans, 1)
			assert.True(t, plans[0].Fallback)
			assert.Equal(t, []string{"sudo apt-get remove -y git"}, plans[0].Commands)
			assert.Equal(t, "dpkg -s git", plans[0].VerifyCommand)
			assert.Contains(t, plans[0].Warnings, FallbackWarning)
		})
	}
}

func TestGeneratePlan_FallbackUsesSystemManagerAndPackageID(t *testing.T) {
	win := state.SystemDescriptor{OS: "windows", PackageManager: "winget", Platform: "Windows"}
	plans := NewPlanner(nil, nil).GeneratePlan(context.Background(),
		[]state.PackageRecord{{Name: "Git", PackageID: "Git.Git", Source: "winget"}}, win)
	require.Len(t, plans, 1)
	require.Len(t, plans[0].Commands, 1)
	assert.Contains(t, plans[0].Commands[0], "Git.Git")

	plans = NewPlanner(nil, nil).GeneratePlan(context.Background(),
		[]state.PackageRecord{{Name: "thing"}}, state.SystemDescriptor{PackageManager: "unknown"})
	assert.Empty(t, plans[0].Commands)
	assert.Len(t, plans[0].Warnings, 2)
}

type fakeRunner struct {
	fail map[string]bool
	ran  []string
}

func (f *fakeRunner) ExecuteCommand(_ context.Context, command, _ string, _ chan<- executor.Event) (executor.Output, error) {
	f.ran = append(f.ran, command)
	if f.fail[command] {
		return executor.Output{ExitCode: 1}, &executor.CommandError{Command: command, ExitCode: 1}
	}
	return executor.Output{}, nil
}

type fakeVerifier struct {
	installed bool
	runErr    error
}

func (f fakeVerifier) Verify(_ context.Context, dep advisor.Dependency) verify.Result {
	if f.runErr != nil {
		return verify.Result{Name: dep.Name, Command: dep.VerifyCommand, Message: "verification command could not run: " + f.runErr.Error()}
	}
	return verify.Result{Name: dep.Name, Ran: true, Installed: f.installed, Success: f.installed, Command: dep.VerifyCommand}
}

type fakeState struct {
	removed  []string
	outcomes []state.Outcome
}

func (f *fakeState) RemovePackage(name string) error {
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeState) LogInstallation(o state.Outcome) error {
	f.outcomes = append(f.outcomes, o)
	return nil
}

type fakeRestore struct {
	calls int
	err   error
}

func (f *fakeRestore) Create([]state.PackageRecord, string) (int64, error) {
	f.calls++
	return 7, f.err
}

func newFlow(service advisor.Service, r *fakeRunner, installed bool, st *fakeState, rp RestorePointer) *Flow {
	return &Flow{
		Planner:  NewPlanner(service, nil),
		Runner:   r,
		Verifier: fakeVerifier{installed: installed},
		State:    st,
		Restore:  rp,
		System:   linuxApt,
	}
}

func TestExecute_Success(t *testing.T) {
	r := &fakeRunner{}
	st := &fakeState{}
	rp := &fakeRestore{}
	f := newFlow(fakeService{plans: []advisor.PlanRecord{
		{Package: "git", Commands: []string{"a", "b"}},
	}}, r, false, st, rp)

	res := f.Execute(context.Background(), state.PackageRecord{Name: "git", Source: "apt"}, "", nil)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Message)
	assert.Equal(t, int64(7), res.RestorePointID)
	assert.Equal(t, []string{"a", "b"}, r.ran)
	assert.Equal(t, []string{"git"}, st.removed)
	require.Len(t, st.outcomes, 1)
	assert.Equal(t, state.ActionUninstall, st.outcomes[0].Action)
	assert.Equal(t, state.ResultSuccess, st.outcomes[0].Result)
	assert.Equal(t, "dpkg -s git", res.Verification.Command)
}

func TestExecute_FirstFailureAborts(t *testing.T) {
	r := &fakeRunner{fail: map[string]bool{"a": true}}
	st := &fakeState{}
	f := newFlow(fakeService{plans: []advisor.PlanRecord{
		{Package: "git", Commands: []string{"a", "b"}},
	}}, r, false, st, nil)

	res := f.Execute(context.Background(), state.PackageRecord{Name: "git"}, "", nil)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, []string{"a"}, r.ran)
	assert.Empty(t, st.removed)
	require.Len(t, st.outcomes, 1)
	assert.Equal(t, state.ResultFailed, st.outcomes[0].Result)
	assert.Equal(t, "a", st.outcomes[0].Command)
}

func TestExecute_StillPresent(t *testing.T) {
	st := &fakeState{}
	f := newFlow(nil, &fakeRunner{}, true, st, nil)

	res := f.Execute(context.Background(), state.PackageRecord{Name: "git", Source: "apt"}, "", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "still present")
	assert.Empty(t, st.removed)
	require.Len(t, st.outcomes, 1)
	assert.Equal(t, state.ResultFailed, st.outcomes[0].Result)
	assert.True(t, res.Plan.Fallback)
}

func TestExecute_UnconfirmedAbsenceKeepsState(t *testing.T) {
	st := &fakeState{}
	f := newFlow(nil, &fakeRunner{}, false, st, nil)
	f.Verifier = fakeVerifier{runErr: context.DeadlineExceeded}

	res := f.Execute(context.Background(), state.PackageRecord{Name: "git", Source: "apt"}, "", nil)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "could not confirm git was removed")
	assert.Empty(t, st.removed)
	require.Len(t, st.outcomes, 1)
	assert.Equal(t, state.ResultFailed, st.outcomes[0].Result)
	assert.Equal(t, "dpkg -s git", st.outcomes[0].Command)
}

func TestExecute_EmptyPlan(t *testing.T) {
	st := &fakeState{}
	r := &fakeRunner{}
	f := newFlow(nil, r, false, st, &fakeRestore{})
	f.System = state.SystemDescriptor{PackageManager: "unknown"}

	res := f.Execute(context.Background(), state.PackageRecord{Name: "thing"}, "", nil)
	assert.False(t, res.Success)
	assert.Equal(t, ErrEmptyPlan.Error(), res.Error)
	assert.Empty(t, r.ran)
}

func TestExecute_RestorePointFailureContinues(t *testing.T) {
	st := &fakeState{}
	rp := &fakeRestore{err: errors.New("disk full")}
	f := newFlow(nil, &fakeRunner{}, false, st, rp)

	res := f.Execute(context.Background(), state.PackageRecord{Name: "git", Source: "apt"}, "", nil)
	assert.True(t, res.Success)
	assert.Zero(t, res.RestorePointID)
	assert.Equal(t, 1, rp.calls)
}

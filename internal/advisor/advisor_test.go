package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/envstate/internal/state"
)

func TestDependencyValidate(t *testing.T) {
	tests := []struct {
		name    string
		dep     Dependency
		wantErr bool
	}{
		{"valid", Dependency{Name: "git", Category: "tool", InstallCommands: []string{"apt install git"}}, false},
		{"empty category becomes other", Dependency{Name: "git", InstallCommands: []string{"x"}}, false},
		{"missing name", Dependency{InstallCommands: []string{"x"}}, true},
		{"unknown category", Dependency{Name: "git", Category: "toy", InstallCommands: []string{"x"}}, true},
		{"blank commands only", Dependency{Name: "git", InstallCommands: []string{"  ", ""}}, true},
		{"bad pattern", Dependency{Name: "git", InstallCommands: []string{"x"}, ExpectedPattern: "git ("}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dep.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidDependency), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, tt.dep.Category)
		})
	}
}

func TestFilterForPlatform(t *testing.T) {
	ubuntu := state.SystemDescriptor{OS: "linux", PackageManager: "apt"}
	deps := []Dependency{{
		Name: "node",
		InstallCommands: []string{
			"sudo apt-get install -y nodejs",
			"brew install node",
			"choco install nodejs",
			"snap install node --classic",
			"npm install -g n",
			"iwr https://get.example | iex",
		},
	}}

	got, err := FilterForPlatform(deps, ubuntu)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"sudo apt-get install -y nodejs",
		"snap install node --classic",
		"npm install -g n",
	}, got[0].InstallCommands)
	assert.Len(t, deps[0].InstallCommands, 6, "input must not be modified")
}

func TestFilterForPlatform_WindowsDropsUnixShell(t *testing.T) {
	win := state.SystemDescriptor{OS: "windows", PackageManager: "winget"}
	deps := []Dependency{{
		Name:            "rustup",
		InstallCommands: []string{"curl https://sh.rustup.rs | sh", "winget install Rustlang.Rustup"},
	}}

	got, err := FilterForPlatform(deps, win)
	require.NoError(t, err)
	assert.Equal(t, []string{"winget install Rustlang.Rustup"}, got[0].InstallCommands)
}

func TestFilterForPlatform_FailsWhenNothingLeft(t *testing.T) {
	mac := state.SystemDescriptor{OS: "darwin", PackageManager: "brew"}
	deps := []Dependency{
		{Name: "jq", InstallCommands: []string{"brew install jq"}},
		{Name: "docker", InstallCommands: []string{"sudo apt install docker.io", "choco install docker"}},
	}

	_, err := FilterForPlatform(deps, mac)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoViableCommands))
	assert.Contains(t, err.Error(), "docker")
}

func stubHTTPClient(t *testing.T, c *http.Client) {
	t.Helper()
	orig := httpClient
	httpClient = c
	t.Cleanup(func() { httpClient = orig })
}

func TestHTTPClientAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "set up python", body["request"])

		_ = json.NewEncoder(w).Encode(Analysis{Dependencies: []Dependency{{
			Name:            "python3",
			Category:        CategoryLanguage,
			InstallCommands: []string{"sudo apt install -y python3"},
			VerifyCommand:   "python3 --version",
			ExpectedPattern: "Python 3",
		}}})
	}))
	defer srv.Close()
	stubHTTPClient(t, srv.Client())

	c := NewHTTPClient(srv.URL+"/", "secret", "")
	got, err := c.Analyze(context.Background(), Request{Text: "set up python", System: state.SystemDescriptor{OS: "linux", PackageManager: "apt"}})
	require.NoError(t, err)
	require.Len(t, got.Dependencies, 1)
	assert.Equal(t, "python3", got.Dependencies[0].Name)
}

func TestHTTPClient_ErrorsAreServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}, "quota exceeded"},
		{"malformed", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}, "malformed response"},
		{"invalid dependency", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"dependencies":[{"name":"x","install_commands":[]}]}`))
		}, "no install commands"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			stubHTTPClient(t, srv.Client())

			_, err := NewHTTPClient(srv.URL, "", "").Analyze(context.Background(), Request{Text: "x"})
			require.Error(t, err)
			assert.True(t, IsServiceError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHTTPClient_NoEndpoint(t *testing.T) {
	_, err := NewHTTPClient("", "", "").UninstallPlan(context.Background(), nil, state.SystemDescriptor{})
	assert.True(t, IsServiceError(err))
}

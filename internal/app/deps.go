package app

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/envstate/internal/advisor"
)

// depFile is the on-disk dependency list. A bare list is accepted too.
type depFile struct {
	Dependencies []advisor.Dependency `yaml:"dependencies"`
}

// readDependencies loads dependencies from a YAML or JSON file; "-" reads
// stdin.
func readDependencies(path string, stdin io.Reader) ([]advisor.Dependency, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dependencies: %w", err)
	}
	return parseDependencies(data)
}

func parseDependencies(data []byte) ([]advisor.Dependency, error) {
	var list []advisor.Dependency
	if err := yaml.Unmarshal(data, &list); err == nil && len(list) > 0 {
		return list, nil
	}
	var f depFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse dependencies: %w", err)
	}
	if len(f.Dependencies) == 0 {
		return nil, fmt.Errorf("no dependencies found")
	}
	return f.Dependencies, nil
}

// needsPassword reports whether any command would prompt for sudo.
func needsPassword(deps []advisor.Dependency) bool {
	for _, d := range deps {
		for _, c := range d.InstallCommands {
			if containsSudo(c) {
				return true
			}
		}
	}
	return false
}

func containsSudo(command string) bool {
	for _, f := range strings.FieldsFunc(command, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ';' || r == '&' || r == '|' || r == '('
	}) {
		if f == "sudo" {
			return true
		}
	}
	return false
}

// readPassword returns the privilege password: one line from stdin with
// --password-stdin, otherwise an echo-free prompt when stdin is a terminal.
// A non-interactive session without --password-stdin gets an empty password
// and sudo decides.
func readPassword(fromStdin bool, stdin io.Reader, prompt io.Writer) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprint(prompt, "sudo password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// confirm asks a yes/no question on stdin.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", question)
	response, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && response == "" {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

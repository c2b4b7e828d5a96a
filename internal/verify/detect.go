package verify

import (
	"os"
	"path/filepath"
)

// Toolchain is a project ecosystem recognized by a manifest file.
type Toolchain struct {
	Name        string   `json:"name"`
	Markers     []string `json:"markers"`
	TestCommand string   `json:"test_command"`
	LintCommand string   `json:"lint_command,omitempty"`
}

// toolchains is checked in order; the first with a marker present wins.
var toolchains = []Toolchain{
	{Name: "go", Markers: []string{"go.mod"}, TestCommand: "go test ./...", LintCommand: "go vet ./..."},
	{Name: "cargo", Markers: []string{"Cargo.toml"}, TestCommand: "cargo test", LintCommand: "cargo clippy -- -D warnings"},
	{Name: "npm", Markers: []string{"package.json"}, TestCommand: "npm test --silent", LintCommand: "npm run lint --if-present"},
	{Name: "python", Markers: []string{"pyproject.toml", "setup.py"}, TestCommand: "python -m pytest -q"},
	{Name: "maven", Markers: []string{"pom.xml"}, TestCommand: "mvn -q test"},
	{Name: "gradle", Markers: []string{"build.gradle", "build.gradle.kts"}, TestCommand: "gradle test -q"},
	{Name: "make", Markers: []string{"Makefile"}, TestCommand: "make test"},
}

// Toolchains returns the detection table in priority order.
func Toolchains() []Toolchain {
	out := make([]Toolchain, len(toolchains))
	copy(out, toolchains)
	return out
}

// Detect returns the highest-priority toolchain whose marker file exists
// in root.
func Detect(root string) (Toolchain, bool) {
	for _, tc := range toolchains {
		for _, m := range tc.Markers {
			info, err := os.Stat(filepath.Join(root, m))
			if err == nil && !info.IsDir() {
				return tc, true
			}
		}
	}
	return Toolchain{}, false
}

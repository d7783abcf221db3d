// Package testutil provides test utilities for CLI testing.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/leapstack-labs/leapprofile/internal/cli/output"
)

// TripSeeds are monthly trip tables: 3, 4 and 5 rows, with 2, 2 and 3
// distinct payment types and 2, 4 and 3 distinct fares.
var TripSeeds = map[string]string{
	"trips_2024_01.csv": `id,vendor_id,payment,fare
1,10,cash,10.5
2,11,card,12
3,10,cash,10.5
`,
	"trips_2024_02.csv": `id,vendor_id,payment,fare
4,10,cash,8
5,11,card,9
6,12,card,10
7,10,cash,11
`,
	"trips_2024_03.csv": `id,vendor_id,payment,fare
8,10,cash,5
9,11,card,5
10,12,app,5
11,10,cash,6
12,11,card,7
`,
}

// ProjectConfig is the leapprofile.yaml written by SetupTestProject.
const ProjectConfig = `state_path: .leapprofile/state.db
seeds_dir: seeds
target:
  type: sqlite
  database: data/trips.db
datasource:
  name: taxi
  assets:
    - name: trips
      table_pattern: "trips_(?P<year>\\d{4})_(?P<month>\\d{2})"
`

// SetupTestProject creates a temporary project with a SQLite target and
// trip seed files.
func SetupTestProject(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()

	for _, dir := range []string{"seeds", "data"} {
		if err := os.MkdirAll(filepath.Join(tmpDir, dir), 0o750); err != nil {
			t.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}
	for name, content := range TripSeeds {
		if err := os.WriteFile(filepath.Join(tmpDir, "seeds", name), []byte(content), 0o600); err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "leapprofile.yaml"), []byte(ProjectConfig), 0o600); err != nil {
		t.Fatalf("failed to create leapprofile.yaml: %v", err)
	}

	return tmpDir
}

// TestRenderer wraps a Renderer for testing with captured output buffers.
type TestRenderer struct {
	*output.Renderer
	Out    *bytes.Buffer
	ErrOut *bytes.Buffer
}

// NewTestRenderer creates a new test renderer with the specified mode and TTY state.
// Output is captured in buffers for inspection.
func NewTestRenderer(mode output.OutputMode, isTTY bool) *TestRenderer {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &TestRenderer{
		Renderer: output.NewRendererWithTTY(out, errOut, isTTY, mode),
		Out:      out,
		ErrOut:   errOut,
	}
}

// NewTestRendererText creates a new test renderer in text mode (simulated TTY).
func NewTestRendererText() *TestRenderer {
	return NewTestRenderer(output.ModeText, true)
}

// NewTestRendererMarkdown creates a new test renderer in markdown mode.
func NewTestRendererMarkdown() *TestRenderer {
	return NewTestRenderer(output.ModeMarkdown, false)
}

// NewTestRendererJSON creates a new test renderer in JSON mode.
func NewTestRendererJSON() *TestRenderer {
	return NewTestRenderer(output.ModeJSON, false)
}

// Output returns the stdout output as a string.
func (tr *TestRenderer) Output() string {
	return tr.Out.String()
}

// ansiPattern matches ANSI escape codes.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// AssertNoANSI checks that a string contains no ANSI escape codes.
func AssertNoANSI(t *testing.T, s string) {
	t.Helper()
	if ansiPattern.MatchString(s) {
		t.Errorf("string contains ANSI escape codes: %q", s)
	}
}

// AssertValidMarkdown performs basic markdown validation.
// It checks for unclosed code fences and empty headers.
func AssertValidMarkdown(t *testing.T, md string) {
	t.Helper()

	fenceCount := strings.Count(md, "```")
	if fenceCount%2 != 0 {
		t.Errorf("unbalanced code fences in markdown: found %d occurrences", fenceCount)
	}

	lines := strings.Split(md, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") && strings.TrimLeft(trimmed, "# ") == "" {
			t.Errorf("empty header at line %d: %q", i+1, line)
		}
	}
}

package role

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func writeRoles(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roles.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write roles file: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	set := Defaults()

	names := []string{"Visionary", "Investigator", "Bard", "Critic"}
	for i, d := range []Descriptor{set.Visionary, set.Investigator, set.Bard, set.Critic} {
		if d.Name != names[i] {
			t.Errorf("role %d: expected name %q, got %q", i, names[i], d.Name)
		}
		if d.Instruction == "" {
			t.Errorf("role %s: expected non-empty instruction", d.Name)
		}
	}

	if !strings.Contains(set.Investigator.Instruction, "Google Search") {
		t.Error("expected investigator instruction to require search")
	}
	if !strings.Contains(set.Critic.Instruction, "JSON") {
		t.Error("expected critic instruction to ask for JSON")
	}
}

func TestDefaults_Independent(t *testing.T) {
	a := Defaults()
	a.Bard.Instruction = "changed"

	if Defaults().Bard.Instruction == "changed" {
		t.Error("mutating a returned set must not affect later defaults")
	}
}

func TestLoadFile_PartialOverride(t *testing.T) {
	path := writeRoles(t, `
bard:
  instruction: "Write a limerick."
Critic:
  name: Editor
`)

	set, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if set.Bard.Instruction != "Write a limerick." {
		t.Errorf("expected bard instruction override, got %q", set.Bard.Instruction)
	}
	if set.Bard.Name != "Bard" {
		t.Errorf("expected bard name to keep default, got %q", set.Bard.Name)
	}
	if set.Critic.Name != "Editor" {
		t.Errorf("expected critic name 'Editor', got %q", set.Critic.Name)
	}
	if set.Critic.Instruction != Defaults().Critic.Instruction {
		t.Error("expected critic instruction to keep default")
	}
	if set.Visionary != Defaults().Visionary {
		t.Error("expected visionary untouched")
	}
}

func TestLoadFile_UnknownRole(t *testing.T) {
	path := writeRoles(t, "oracle:\n  instruction: hi\n")

	_, err := LoadFile(path)
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
	if !strings.Contains(err.Error(), "oracle") {
		t.Errorf("expected error to name the role, got %v", err)
	}
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	path := writeRoles(t, "bard: [unterminated")

	if _, err := LoadFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFile_RoundTrip(t *testing.T) {
	out, err := yaml.Marshal(Defaults())
	if err != nil {
		t.Fatalf("failed to marshal defaults: %v", err)
	}

	set, err := LoadFile(writeRoles(t, string(out)))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if set != Defaults() {
		t.Error("expected marshalled defaults to load back unchanged")
	}
}

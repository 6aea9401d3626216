package consumer

import (
	"os"
	"path/filepath"
	"testing"
)

func writeAgent(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDiscoverAgents(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()

	notify := writeAgent(t, first, "notify", "#!/bin/sh\nexit 0\n")
	writeAgent(t, second, "notify", "#!/bin/sh\nexit 1\n")
	archive := writeAgent(t, second, "archive", "#!/bin/sh\nexit 0\n")

	if err := os.WriteFile(filepath.Join(first, "README"), []byte("not an agent"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(first, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}

	agents := DiscoverAgents([]string{first, filepath.Join(first, "missing"), second})

	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d: %v", len(agents), agents)
	}
	if agents["notify"] != notify {
		t.Errorf("earlier path should win: notify = %s, want %s", agents["notify"], notify)
	}
	if agents["archive"] != archive {
		t.Errorf("archive = %s, want %s", agents["archive"], archive)
	}
	if _, ok := agents["README"]; ok {
		t.Error("non-executable file should not be discovered")
	}
	if _, ok := agents["subdir"]; ok {
		t.Error("directories should not be discovered")
	}
}

func TestDiscoverAgents_ExpandsEnv(t *testing.T) {
	dir := t.TempDir()
	writeAgent(t, dir, "notify", "#!/bin/sh\n")
	t.Setenv("TESTRECORDER_AGENT_DIR", dir)

	agents := DiscoverAgents([]string{"$TESTRECORDER_AGENT_DIR"})
	if _, ok := agents["notify"]; !ok {
		t.Errorf("expected agent from expanded path, got %v", agents)
	}
}

func TestFindAgent(t *testing.T) {
	agents := map[string]string{"notify": "/opt/agents/notify"}

	path, err := FindAgent(agents, "notify")
	if err != nil || path != "/opt/agents/notify" {
		t.Errorf("FindAgent() = %q, %v", path, err)
	}
	if _, err := FindAgent(agents, "missing"); err == nil {
		t.Error("expected error for unknown agent")
	}
}

func TestAgentNamesSorted(t *testing.T) {
	names := agentNames(map[string]string{"b": "", "c": "", "a": ""})
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Errorf("agentNames() = %v", names)
	}
}

package consumer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// DiscoverAgents searches for executable agents in the given directories and
// returns a map of agent name to full path. Earlier directories win on name
// clashes. Without paths the defaults are searched:
// 1. ./agents/
// 2. $TESTRECORDER_HOME/agents/
// 3. /usr/local/lib/testrecorder/agents/
func DiscoverAgents(paths []string) map[string]string {
	agents := make(map[string]string)

	if len(paths) == 0 {
		paths = defaultAgentPaths()
	}

	for _, path := range paths {
		dir := expandPath(path)

		entries, err := os.ReadDir(dir)
		if err != nil {
			// Missing or unreadable directories are skipped
			continue
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if _, exists := agents[name]; exists {
				continue
			}
			fullPath := filepath.Join(dir, name)
			if isExecutable(fullPath) {
				agents[name] = fullPath
			}
		}
	}

	return agents
}

func defaultAgentPaths() []string {
	paths := []string{"./agents/"}

	if home := os.Getenv("TESTRECORDER_HOME"); home != "" {
		paths = append(paths, filepath.Join(home, "agents"))
	}

	return append(paths, "/usr/local/lib/testrecorder/agents/")
}

// expandPath expands environment variables and resolves relative paths
func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if !filepath.IsAbs(expanded) {
		if abs, err := filepath.Abs(expanded); err == nil {
			return abs
		}
	}
	return expanded
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// FindAgent looks up an agent by name in a discovered agents map.
func FindAgent(agents map[string]string, name string) (string, error) {
	path, exists := agents[name]
	if !exists {
		return "", fmt.Errorf("agent not found: %s", name)
	}
	return path, nil
}

func agentNames(agents map[string]string) []string {
	names := make([]string, 0, len(agents))
	for name := range agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

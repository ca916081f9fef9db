package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"tssv/internal/testsupport"
)

type cliTestEnv struct {
	*testsupport.Project
	configPath string
	cacheDir   string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	proj := testsupport.NewProject(t)
	t.Setenv("HOME", filepath.Join(proj.Root, "home"))
	env := &cliTestEnv{
		Project:    proj,
		configPath: filepath.Join(proj.Root, "config.toml"),
		cacheDir:   filepath.Join(proj.Root, "cache"),
	}

	content := fmt.Sprintf(`[paths]
log_dir = %q
snapshot_dir = %q
lock_file = %q
api_bind = "127.0.0.1:0"

[scan]
mdoc_dir = %q
image_dir = %q

[preview]
cache_dir = %q
`,
		filepath.Join(proj.Root, "logs"),
		filepath.Join(proj.Root, "snapshots"),
		filepath.Join(proj.Root, "tssv.lock"),
		proj.MdocDir,
		proj.ImageDir,
		env.cacheDir,
	)
	testsupport.WriteText(t, env.configPath, content)
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()

	expected := []string{"login", "logout", "whoami", "status", "show", "run", "history", "config"}
	for _, name := range expected {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing command %q", name)
		}
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"config", "init", "--path", target})

	if err := root.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "client_id") {
		t.Fatalf("sample config missing client_id: %s", data)
	}
	if !strings.Contains(out.String(), target) {
		t.Fatalf("output should name the target path: %s", out.String())
	}
}

func TestConfigInitRefusesOverwrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(target, []byte("# existing\n"), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	root := newRootCommand()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"config", "init", "--path", target})

	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "--overwrite") {
		t.Fatalf("expected overwrite hint, got %v", err)
	}

	root = newRootCommand()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"config", "init", "--path", target, "--overwrite"})
	if err := root.Execute(); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
	data, _ := os.ReadFile(target)
	if !strings.Contains(string(data), "client_id") {
		t.Fatal("overwrite should replace the file with the sample")
	}
}

func TestRunRequiresWorkflowAndTarget(t *testing.T) {
	root := newRootCommand()
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"run", "download"})

	if err := root.Execute(); err == nil {
		t.Fatal("expected an argument error")
	}
}

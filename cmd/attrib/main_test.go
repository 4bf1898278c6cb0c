package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("attrib %s: %v\n%s", strings.Join(args, " "), err, buf.String())
	}
	return buf.String()
}

func TestInitExplainShow(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.json")
	fasta := filepath.Join(dir, "seqs.fa")
	db := filepath.Join(dir, "runs.db")
	if err := os.WriteFile(fasta, []byte(">first\nACGTACGTAC\n>second\nTTGACCAGTA\n>third\nGGGCCCATAT\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out := execute(t, "init-model", "--length", "10", "--filters", "4", "--kernel", "3", "--hidden", "6", "--out", model)
	if !strings.Contains(out, "output [1]") {
		t.Fatalf("unexpected init-model output: %s", out)
	}

	out = execute(t, "explain", "--fasta", fasta, "--model", model, "--batch-size", "2", "--store", "sqlite", "--db", db, "--quiet")
	first := strings.SplitN(out, "\n", 2)[0]
	if !strings.HasPrefix(first, "run ") || !strings.Contains(first, "NaiveISM_imps [3 4 10]") {
		t.Fatalf("unexpected explain output: %s", out)
	}
	runID := strings.TrimSuffix(strings.Fields(first)[1], ":")

	out = execute(t, "show", "--db", db)
	if !strings.Contains(out, runID) {
		t.Fatalf("run %s not listed:\n%s", runID, out)
	}

	out = execute(t, "show", "--db", db, "--run", runID)
	for _, name := range []string{"first", "second", "third"} {
		if !strings.Contains(out, name) {
			t.Errorf("summary is missing %s:\n%s", name, out)
		}
	}

	out = execute(t, "show", "--db", db, "--run", runID, "--seq", "second")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 || !strings.HasPrefix(lines[0], "BASE") || !strings.HasPrefix(lines[4], "T") {
		t.Fatalf("unexpected map output:\n%s", out)
	}
	if got := len(strings.Fields(lines[1])); got != 11 {
		t.Errorf("Expected a base and 10 positions per row, got %d fields", got)
	}
}

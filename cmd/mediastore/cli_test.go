package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mediastore/internal/config"
	"mediastore/internal/dirtree"
	"mediastore/internal/media"
)

const cliDocID = "c0000000-0000-4000-8000-000000000001"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "media")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatalf("mkdir root: %v", err)
	}
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(dir, "meta.db")
	cfg.Storage.Root = root
	cfg.Storage.MaxEntriesPerDirectory = 10
	cfg.Storage.TreeDepth = 2
	return &cfg
}

// run executes the CLI against cfg and returns what it wrote to stdout.
func run(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })

	cmd := newRootCmd(cfg)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	stdout = prev
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestDocumentLifecycle(t *testing.T) {
	cfg := testConfig(t)
	src := writeFile(t, t.TempDir(), "Report.PDF", "first")

	out, err := run(t, cfg, "doc", "put", src, "--id", cliDocID, "--creator", "alice")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if strings.TrimSpace(out) != cliDocID {
		t.Fatalf("expected id output, got %q", out)
	}

	out, err = run(t, cfg, "doc", "cat", cliDocID)
	if err != nil || out != "first" {
		t.Fatalf("cat: %q (err: %v)", out, err)
	}

	next := writeFile(t, t.TempDir(), "v2.txt", "second")
	if _, err := run(t, cfg, "doc", "replace", cliDocID, next, "--name", "renamed"); err != nil {
		t.Fatalf("replace: %v", err)
	}
	out, err = run(t, cfg, "--json", "doc", "show", cliDocID)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var doc struct {
		Name string `json:"name"`
		Blob struct {
			Extension string `json:"extension"`
			SizeBytes int64  `json:"size_bytes"`
		} `json:"blob"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if doc.Name != "renamed" || doc.Blob.Extension != "txt" || doc.Blob.SizeBytes != 6 {
		t.Fatalf("unexpected document %+v", doc)
	}

	if _, err := run(t, cfg, "doc", "rm", cliDocID); err != nil {
		t.Fatalf("rm: %v", err)
	}
	if _, err := run(t, cfg, "doc", "cat", cliDocID); !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after rm, got %v", err)
	}
}

func TestDocPutRequiresExistingRoot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Root = filepath.Join(t.TempDir(), "missing")
	src := writeFile(t, t.TempDir(), "a.txt", "x")

	_, err := run(t, cfg, "doc", "put", src, "--creator", "alice")
	if !errors.Is(err, errStorageRootMissing) {
		t.Fatalf("expected missing root error, got %v", err)
	}
}

func TestUploadManifestAndSweep(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	writeFile(t, dir, "photo.jpg", "jpeg")
	writeFile(t, dir, "photo-s.jpg", "small")
	manifest := writeFile(t, dir, "batch.yaml", `surveys:
  - id: 6b0f1c2d-3e4f-4a5b-8c6d-7e8f9a0b1c2d
    username: alice
    campaign_urn: urn:campaign:test
    survey_id: daily
    epoch_millis: 1700000000000
    prompts:
      - prompt_id: mood
        type: text
        response: good
      - prompt_id: photo
        type: photo
        media:
          id: a0000000-0000-4000-8000-000000000001
          kind: image
          file: photo.jpg
          scaled: photo-s.jpg
`)
	metricsFile := filepath.Join(t.TempDir(), "mediastore.prom")

	out, err := run(t, cfg, "--metrics-file", metricsFile, "upload", manifest)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.Contains(out, "inserted: 1, duplicates: 0") {
		t.Fatalf("unexpected upload output %q", out)
	}
	prom, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(prom), `mediastore_blobs_written_total{kind="image"} 1`) {
		t.Fatalf("expected blob metrics, got:\n%s", prom)
	}

	out, err = run(t, cfg, "upload", manifest)
	if err != nil {
		t.Fatalf("retry upload: %v", err)
	}
	if !strings.Contains(out, "inserted: 0, duplicates: 1") {
		t.Fatalf("expected duplicate on retry, got %q", out)
	}

	out, err = run(t, cfg, "blob", "cat", "--scaled", "a0000000-0000-4000-8000-000000000001")
	if err != nil || out != "small" {
		t.Fatalf("blob cat: %q (err: %v)", out, err)
	}

	out, err = run(t, cfg, "sweep", "--grace", "1ns")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, "dry run: scanned=2 orphans=0") {
		t.Fatalf("unexpected sweep output %q", out)
	}

	if _, err := run(t, cfg, "check"); err != nil {
		t.Fatalf("check: %v", err)
	}
	if _, err := run(t, cfg, "survey", "rm", "6b0f1c2d-3e4f-4a5b-8c6d-7e8f9a0b1c2d"); err != nil {
		t.Fatalf("survey rm: %v", err)
	}
	if _, err := run(t, cfg, "survey", "show", "6b0f1c2d-3e4f-4a5b-8c6d-7e8f9a0b1c2d"); !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTreeReportsStructureFull(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.MaxEntriesPerDirectory = 2
	cfg.Storage.TreeDepth = 0
	dir := t.TempDir()
	for i, name := range []string{"a.txt", "b.txt"} {
		src := writeFile(t, dir, name, name)
		if _, err := run(t, cfg, "doc", "put", src, "--creator", "alice"); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}
	src := writeFile(t, dir, "c.txt", "c")
	if _, err := run(t, cfg, "doc", "put", src, "--creator", "alice"); !errors.Is(err, dirtree.ErrStructureFull) {
		t.Fatalf("expected ErrStructureFull, got %v", err)
	}

	out, err := run(t, cfg, "tree")
	if err != nil {
		t.Fatalf("tree: %v", err)
	}
	if !strings.Contains(out, "document: files=2 bytes=10 leaves=1") {
		t.Fatalf("unexpected tree output %q", out)
	}
}

func TestMigrateInspect(t *testing.T) {
	cfg := testConfig(t)
	out, err := run(t, cfg, "migrate", "--inspect")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(out, "Current version: 0") || !strings.Contains(out, "Pending migrations: 2") {
		t.Fatalf("unexpected plan %q", out)
	}

	if _, err := run(t, cfg, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	out, err = run(t, cfg, "migrate", "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out, "No pending migrations.") {
		t.Fatalf("expected nothing pending, got %q", out)
	}
}

func TestConfigGet(t *testing.T) {
	cfg := testConfig(t)
	out, err := run(t, cfg, "config", "get", "storage.tree_depth")
	if err != nil || strings.TrimSpace(out) != "2" {
		t.Fatalf("get: %q (err: %v)", out, err)
	}
	out, err = run(t, cfg, "config", "get")
	if err != nil || !strings.Contains(out, "database.driver = sqlite") {
		t.Fatalf("get all: %q (err: %v)", out, err)
	}
	if _, err := run(t, cfg, "config", "get", "nope"); err == nil {
		t.Fatal("expected unknown key error")
	}
}

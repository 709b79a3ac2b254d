package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/evq/blobstore"
	"github.com/pithecene-io/evq/cli/config"
	"github.com/pithecene-io/evq/registry"
	"github.com/pithecene-io/evq/report"
	"github.com/pithecene-io/evq/types"
)

const (
	liveFile   = "AAAAAAAAAAAAAA:inst-1"
	orphanFile = "BBBBBBBBBBBBBB:inst-2"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "evq.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// seedHost writes blobs of the given sizes under filename in an fs store.
func seedHost(t *testing.T, root, filename string, sizes ...int) {
	t.Helper()
	if err := os.MkdirAll(root, 0o750); err != nil {
		t.Fatal(err)
	}
	st, err := blobstore.NewLodeStore(lode.NewFSFactory(root), blobstore.DefaultCollection)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range sizes {
		_, err := st.Put(t.Context(), bytes.Repeat([]byte("x"), n), blobstore.PutMeta{
			Filename: filename,
			Shard:    "shard-a",
		})
		if err != nil {
			t.Fatalf("seed %s: %v", filename, err)
		}
	}
}

func seedRegistry(t *testing.T, dsn string, agents ...registry.Agent) {
	t.Helper()
	reg, err := registry.OpenSQLite(t.Context(), registry.Config{Driver: registry.DriverSQLite, DSN: dsn})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = reg.Close() }()
	for _, a := range agents {
		if err := reg.Put(t.Context(), a); err != nil {
			t.Fatal(err)
		}
	}
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	if err == nil {
		return exitSuccess
	}
	var exitCoder cli.ExitCoder
	if !errors.As(err, &exitCoder) {
		t.Fatalf("error %v is not a cli.ExitCoder", err)
	}
	return exitCoder.ExitCode()
}

func TestMonitorFlags(t *testing.T) {
	want := []string{"config", "format", "no-color", "dry-run", "parallel"}
	flags := MonitorFlags()
	if len(flags) != len(want) {
		t.Fatalf("got %d flags, want %d", len(flags), len(want))
	}
	for i, f := range flags {
		if f.Names()[0] != want[i] {
			t.Errorf("flag %d = %q, want %q", i, f.Names()[0], want[i])
		}
	}
}

func TestConfigFlag_DefaultsAndEnv(t *testing.T) {
	if ConfigFlag.Value != config.DefaultPath {
		t.Errorf("default = %q, want %q", ConfigFlag.Value, config.DefaultPath)
	}
	if len(ConfigFlag.EnvVars) != 1 || ConfigFlag.EnvVars[0] != "EVQ_CONFIG" {
		t.Errorf("env vars = %v, want [EVQ_CONFIG]", ConfigFlag.EnvVars)
	}
}

func TestMonitorChoice_Apply(t *testing.T) {
	tests := []struct {
		name   string
		choice monitorChoice
		want   config.ScanConfig
	}{
		{
			name:   "no flags keeps config",
			choice: monitorChoice{},
			want:   config.ScanConfig{Parallel: 4, DryRun: true, Format: "json"},
		},
		{
			name:   "explicit false dry-run overrides",
			choice: monitorChoice{dryRun: false, dryRunSet: true},
			want:   config.ScanConfig{Parallel: 4, DryRun: false, Format: "json"},
		},
		{
			name:   "format and parallel override",
			choice: monitorChoice{format: "yaml", parallel: 1, parallelSet: true},
			want:   config.ScanConfig{Parallel: 1, DryRun: true, Format: "yaml"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Scan: config.ScanConfig{Parallel: 4, DryRun: true, Format: "json"}}
			tt.choice.apply(cfg)
			if cfg.Scan != tt.want {
				t.Errorf("scan = %+v, want %+v", cfg.Scan, tt.want)
			}
		})
	}
}

func TestStorageBackend(t *testing.T) {
	shards := func(kinds ...string) *config.Config {
		cfg := &config.Config{}
		for _, k := range kinds {
			cfg.Shards = append(cfg.Shards, config.ShardConfig{Storage: config.StorageConfig{Backend: k}})
		}
		return cfg
	}

	if got := storageBackend(shards("fs", "fs")); got != "fs" {
		t.Errorf("got %q, want fs", got)
	}
	if got := storageBackend(shards("fs", "s3")); got != "mixed" {
		t.Errorf("got %q, want mixed", got)
	}
	if got := storageBackend(shards()); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestBuildAdapter(t *testing.T) {
	none, err := buildAdapter(config.AdapterConfig{})
	if err != nil || none != nil {
		t.Fatalf("no adapter: got %v, %v", none, err)
	}

	zero := 0
	tests := []config.AdapterConfig{
		{Type: "webhook", URL: "http://127.0.0.1:1/hook", Retries: &zero},
		{Type: "redis", URL: "redis://127.0.0.1:1/0", Channel: "evq:test"},
	}
	for _, ac := range tests {
		t.Run(ac.Type, func(t *testing.T) {
			a, err := buildAdapter(ac)
			if err != nil {
				t.Fatalf("buildAdapter: %v", err)
			}
			if a == nil {
				t.Fatal("expected adapter")
			}
			if err := a.Close(); err != nil {
				t.Errorf("close: %v", err)
			}
		})
	}

	if _, err := buildAdapter(config.AdapterConfig{Type: "kafka", URL: "x"}); err == nil {
		t.Error("expected error for unsupported adapter")
	}
}

func TestRunMonitor_MissingConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := runMonitor(t.Context(), monitorChoice{configPath: filepath.Join(t.TempDir(), "missing.yaml")}, &stdout, &stderr)

	if code := exitCode(t, err); code != exitConfigOrConnect {
		t.Errorf("exit code = %d, want %d", code, exitConfigOrConnect)
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %q, want config file not found", err.Error())
	}
	if stdout.Len() != 0 {
		t.Errorf("stdout should be empty, got %q", stdout.String())
	}
}

func TestRunMonitor_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "registry:\n  driver: oracle\n  dsn: x\n")

	var stdout, stderr bytes.Buffer
	err := runMonitor(t.Context(), monitorChoice{configPath: path}, &stdout, &stderr)
	if code := exitCode(t, err); code != exitConfigOrConnect {
		t.Errorf("exit code = %d, want %d", code, exitConfigOrConnect)
	}
}

func TestRunMonitor_RegistryConnectFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, fmt.Sprintf(`
registry:
  driver: postgres
  dsn: postgres://evq@127.0.0.1:1/evq?sslmode=disable
  connect_timeout: 1s
shards:
  - id: shard-a
    host: evidence-a:9000
    storage:
      backend: fs
      path: %s
`, filepath.Join(dir, "store")))

	var stdout, stderr bytes.Buffer
	err := runMonitor(t.Context(), monitorChoice{configPath: path}, &stdout, &stderr)
	if code := exitCode(t, err); code != exitConfigOrConnect {
		t.Errorf("exit code = %d, want %d", code, exitConfigOrConnect)
	}
	if !strings.Contains(err.Error(), "registry connect failed") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestRunMonitor_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "registry.db")
	storeRoot := filepath.Join(dir, "store-a")

	lastSync := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	seedRegistry(t, dsn, registry.Agent{
		Key:      types.AgentKey{Ident: "AAAAAAAAAAAAAA", Instance: "inst-1"},
		Platform: "windows",
		LastSync: &lastSync,
		Status:   types.SyncIdle,
	})
	seedHost(t, storeRoot, liveFile, 100, 200, 300)
	seedHost(t, storeRoot, orphanFile, 50)

	path := writeConfig(t, dir, fmt.Sprintf(`
registry:
  driver: sqlite
  dsn: %s
shards:
  - id: shard-a
    host: evidence-a:9000
    storage:
      backend: fs
      path: %s
`, dsn, storeRoot))

	var stdout, stderr bytes.Buffer
	err := runMonitor(t.Context(), monitorChoice{configPath: path, noColor: true}, &stdout, &stderr)
	if code := exitCode(t, err); code != exitSuccess {
		t.Fatalf("exit code = %d, want 0 (err: %v)", code, err)
	}

	out := stdout.String()
	for _, want := range []string{liveFile, "windows", "2026-10-01 12:00:00", "600 B", "evidence-a"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, orphanFile) {
		t.Errorf("report should not list the orphan:\n%s", out)
	}
	if !strings.Contains(stderr.String(), "reclaimed=1 (50 B)") {
		t.Errorf("summary missing reclaim totals:\n%s", stderr.String())
	}

	st, err := blobstore.NewLodeStore(lode.NewFSFactory(storeRoot), blobstore.DefaultCollection)
	if err != nil {
		t.Fatal(err)
	}
	names, err := st.DistinctFilenames(t.Context())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != liveFile {
		t.Errorf("remaining filenames = %v, want [%s]", names, liveFile)
	}
}

func TestRunMonitor_DryRunKeepsOrphans(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "registry.db")
	storeRoot := filepath.Join(dir, "store-a")
	seedRegistry(t, dsn)
	seedHost(t, storeRoot, orphanFile, 50)

	path := writeConfig(t, dir, fmt.Sprintf(`
registry:
  driver: sqlite
  dsn: %s
shards:
  - id: shard-a
    host: evidence-a
    storage:
      path: %s
`, dsn, storeRoot))

	var stdout, stderr bytes.Buffer
	choice := monitorChoice{configPath: path, noColor: true, dryRun: true, dryRunSet: true, format: "json"}
	if err := runMonitor(t.Context(), choice, &stdout, &stderr); err != nil {
		t.Fatalf("runMonitor: %v", err)
	}

	var rep struct {
		Hosts []struct {
			Host      string `json:"host"`
			Reclaimed []struct {
				Filename string `json:"filename"`
				DryRun   bool   `json:"dry_run"`
			} `json:"reclaimed"`
		} `json:"hosts"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &rep); err != nil {
		t.Fatalf("decode json report: %v\n%s", err, stdout.String())
	}
	if len(rep.Hosts) != 1 || len(rep.Hosts[0].Reclaimed) != 1 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if got := rep.Hosts[0].Reclaimed[0]; got.Filename != orphanFile || !got.DryRun {
		t.Errorf("reclaimed = %+v, want dry-run %s", got, orphanFile)
	}
	if !strings.Contains(stderr.String(), "would reclaim=1") {
		t.Errorf("summary should say would reclaim:\n%s", stderr.String())
	}

	st, err := blobstore.NewLodeStore(lode.NewFSFactory(storeRoot), blobstore.DefaultCollection)
	if err != nil {
		t.Fatal(err)
	}
	blobs, err := st.ByFilename(t.Context(), orphanFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(blobs) != 1 {
		t.Errorf("dry run deleted evidence: %d blobs left", len(blobs))
	}
}

func TestRunMonitor_InterruptedExitsDistinctly(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "registry.db")
	storeRoot := filepath.Join(dir, "store-a")
	seedRegistry(t, dsn)
	seedHost(t, storeRoot, orphanFile, 50)

	path := writeConfig(t, dir, fmt.Sprintf(`
registry:
  driver: sqlite
  dsn: %s
shards:
  - id: shard-a
    host: evidence-a
    storage:
      path: %s
`, dsn, storeRoot))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var stdout, stderr bytes.Buffer
	err := runMonitor(ctx, monitorChoice{configPath: path, noColor: true}, &stdout, &stderr)
	if code := exitCode(t, err); code != exitInterrupted {
		t.Fatalf("exit code = %d, want %d (err %v)", code, exitInterrupted, err)
	}
	if !strings.Contains(err.Error(), "interrupted") {
		t.Errorf("err = %q", err.Error())
	}
}

func TestExitCodesHelp(t *testing.T) {
	for _, want := range []string{"0 ", "1 ", "2 ", "SCAN FAILED", "130"} {
		if !strings.Contains(ExitCodesHelp, want) {
			t.Errorf("ExitCodesHelp missing %q", want)
		}
	}
}

func TestRunMonitor_FailedHostExitsTwo(t *testing.T) {
	dir := t.TempDir()
	dsn := filepath.Join(dir, "registry.db")
	seedRegistry(t, dsn)

	// A regular file where the bad host's store directory should be.
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	path := writeConfig(t, dir, fmt.Sprintf(`
registry:
  driver: sqlite
  dsn: %s
shards:
  - id: shard-a
    host: good-host
    storage:
      path: %s
  - id: shard-b
    host: bad-host:9000
    storage:
      path: %s
`, dsn, filepath.Join(dir, "good"), filepath.Join(blocker, "store")))

	var stdout, stderr bytes.Buffer
	err := runMonitor(t.Context(), monitorChoice{configPath: path, noColor: true}, &stdout, &stderr)
	if code := exitCode(t, err); code != exitHostFailed {
		t.Fatalf("exit code = %d, want %d (err: %v)", code, exitHostFailed, err)
	}
	if !strings.Contains(stdout.String(), "SCAN FAILED on bad-host") {
		t.Errorf("table should mark the failed host:\n%s", stdout.String())
	}
	if !strings.Contains(stderr.String(), "failed: bad-host") {
		t.Errorf("summary should name the failed host:\n%s", stderr.String())
	}
}

func TestRunStore(t *testing.T) {
	dir := t.TempDir()
	storeRoot := filepath.Join(dir, "store-a")
	path := writeConfig(t, dir, fmt.Sprintf(`
registry:
  driver: sqlite
  dsn: %s
shards:
  - id: shard-a
    host: evidence-a
    storage:
      path: %s
resolver:
  type: static
  assignments:
    "%s": shard-a
`, filepath.Join(dir, "registry.db"), storeRoot, liveFile))

	var stdout, stderr bytes.Buffer
	choice := storeChoice{
		configPath: path,
		ident:      "AAAAAAAAAAAAAA",
		instance:   "inst-1",
		file:       "-",
		format:     "json",
	}
	if err := runStore(t.Context(), choice, strings.NewReader("evidence"), &stdout, &stderr); err != nil {
		t.Fatalf("runStore: %v", err)
	}

	var resp StoreResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v\n%s", err, stdout.String())
	}
	if resp.Filename != liveFile || resp.Shard != "shard-a" || resp.Bytes != 8 || resp.Handle == "" {
		t.Errorf("response = %+v", resp)
	}

	st, err := blobstore.NewLodeStore(lode.NewFSFactory(storeRoot), blobstore.DefaultCollection)
	if err != nil {
		t.Fatal(err)
	}
	blobs, err := st.ByFilename(t.Context(), liveFile)
	if err != nil {
		t.Fatal(err)
	}
	if len(blobs) != 1 || blobs[0].Shard != "shard-a" {
		t.Errorf("stored blobs = %+v", blobs)
	}
}

func TestRunStore_Rejections(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, fmt.Sprintf(`
registry:
  driver: sqlite
  dsn: %s
shards:
  - id: shard-a
    host: evidence-a
    storage:
      path: %s
`, filepath.Join(dir, "registry.db"), filepath.Join(dir, "store-a")))

	tests := []struct {
		name     string
		ident    string
		wantText string
	}{
		{"no shard assigned", "AAAAAAAAAAAAAA", "invalid shard"},
		{"malformed ident", "short", "malformed evidence filename"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			choice := storeChoice{configPath: path, ident: tt.ident, instance: "inst-1", file: "-"}
			err := runStore(t.Context(), choice, strings.NewReader("evidence"), &stdout, &stderr)
			if code := exitCode(t, err); code != exitConfigOrConnect {
				t.Fatalf("exit code = %d, want %d", code, exitConfigOrConnect)
			}
			if !strings.Contains(err.Error(), tt.wantText) {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantText)
			}
		})
	}
}

func TestRenderValue(t *testing.T) {
	resp := VersionResponse{Version: "1.2.3", NotificationVersion: "1.2.3", Commit: "abc"}

	tests := []struct {
		format report.Format
		want   string
	}{
		{report.FormatJSON, `"commit": "abc"`},
		{report.FormatYAML, "commit: abc"},
		{report.FormatTable, "Commit        abc"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			if err := renderValue(&buf, tt.format, resp); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q missing %q", buf.String(), tt.want)
			}
		})
	}
}

func TestIsStderrTTY(_ *testing.T) {
	// Depends on the runtime environment; only checks it does not panic.
	_ = isStderrTTY()
}

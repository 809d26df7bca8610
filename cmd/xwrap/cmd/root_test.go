package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// isolate keeps the user's config and environment out of a test run
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, key := range []string{"XWRAP_LOG_LEVEL", "XWRAP_LOG_FORMAT", "XWRAP_METRICS_FILE", "XWRAP_CHECK_SPACE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return dir
}

func run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := Run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWrapCommand(t *testing.T) {
	dir := isolate(t)
	in := filepath.Join(dir, "hello.bin")
	out := filepath.Join(dir, "HELLO.X")
	writeFile(t, in, []byte{0xDE, 0xAD, 0xBE, 0xEF})

	code, stdout, stderr := run(in, out)
	if code != ExitOK {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	want := "Created " + out + ": 68 bytes (text=0x4)\n"
	if stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
	if stderr != "" {
		t.Errorf("unexpected stderr at default log level: %q", stderr)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if len(data) != 68 || data[0] != 0x48 || data[1] != 0x55 || data[15] != 0x04 {
		t.Errorf("unexpected output % x", data)
	}
}

func TestWrapUsage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no args", nil},
		{"one arg", []string{"in.bin"}},
		{"three args", []string{"in.bin", "out.x", "extra"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			wd, _ := os.Getwd()
			if err := os.Chdir(dir); err != nil {
				t.Fatal(err)
			}
			defer os.Chdir(wd)

			code, stdout, _ := run(tt.args...)
			if code != ExitUsage {
				t.Errorf("exit code = %d, want %d", code, ExitUsage)
			}
			if stdout != "Usage: xwrap <input.bin> <output.x>\n" {
				t.Errorf("stdout = %q", stdout)
			}

			entries, _ := os.ReadDir(dir)
			if len(entries) != 0 {
				t.Errorf("usage error touched the filesystem: %v", entries)
			}
		})
	}
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	isolate(t)
	code, stdout, stderr := run("--bogus", "a", "b")
	if code != ExitUsage {
		t.Errorf("exit code = %d, want %d", code, ExitUsage)
	}
	if !strings.HasPrefix(stdout, "Usage: ") {
		t.Errorf("stdout = %q", stdout)
	}
	if !strings.Contains(stderr, "bogus") {
		t.Errorf("stderr should name the bad flag: %q", stderr)
	}
}

func TestWrapMissingInput(t *testing.T) {
	dir := isolate(t)
	out := filepath.Join(dir, "out.x")

	code, stdout, stderr := run(filepath.Join(dir, "nope.bin"), out)
	if code != ExitFailure {
		t.Errorf("exit code = %d, want %d", code, ExitFailure)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty", stdout)
	}
	if !strings.HasPrefix(stderr, "Error: wrap ") {
		t.Errorf("stderr = %q", stderr)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("output created despite failure")
	}
}

func TestInspectCommand(t *testing.T) {
	dir := isolate(t)
	in := filepath.Join(dir, "prog.bin")
	x := filepath.Join(dir, "PROG.X")
	writeFile(t, in, make([]byte, 300))
	if code, _, stderr := run(in, x); code != ExitOK {
		t.Fatalf("wrap failed: %s", stderr)
	}

	t.Run("json", func(t *testing.T) {
		code, stdout, stderr := run("inspect", "-o", "json", x)
		if code != ExitOK {
			t.Fatalf("exit code = %d, stderr: %s", code, stderr)
		}
		var info struct {
			FileSize   int64 `json:"file_size"`
			Consistent bool  `json:"consistent"`
			Header     struct {
				TextSize uint32 `json:"text_size"`
			} `json:"header"`
		}
		if err := json.Unmarshal([]byte(stdout), &info); err != nil {
			t.Fatalf("invalid JSON: %v\n%s", err, stdout)
		}
		if info.FileSize != 364 || info.Header.TextSize != 300 || !info.Consistent {
			t.Errorf("unexpected info %+v", info)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		code, stdout, _ := run("inspect", "--output", "yaml", x)
		if code != ExitOK {
			t.Fatalf("exit code = %d", code)
		}
		for _, want := range []string{"text_size: 300", "file_size: 364", "consistent: true"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("yaml missing %q:\n%s", want, stdout)
			}
		}
	})

	t.Run("table", func(t *testing.T) {
		code, stdout, _ := run("inspect", x)
		if code != ExitOK {
			t.Fatalf("exit code = %d", code)
		}
		for _, want := range []string{"300 bytes", "0x00000000", "Yes"} {
			if !strings.Contains(stdout, want) {
				t.Errorf("table missing %q:\n%s", want, stdout)
			}
		}
	})

	t.Run("bad format", func(t *testing.T) {
		code, _, stderr := run("inspect", "-o", "xml", x)
		if code != ExitFailure || !strings.Contains(stderr, "unknown output format") {
			t.Errorf("code = %d, stderr = %q", code, stderr)
		}
	})
}

func TestInspectRejectsRawBinary(t *testing.T) {
	dir := isolate(t)
	raw := filepath.Join(dir, "raw.bin")
	writeFile(t, raw, bytes.Repeat([]byte{0x4E, 0x71}, 64))

	code, _, stderr := run("inspect", raw)
	if code != ExitFailure {
		t.Errorf("exit code = %d, want %d", code, ExitFailure)
	}
	if !strings.Contains(stderr, "bad .X magic") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestSubcommandUsage(t *testing.T) {
	isolate(t)

	code, stdout, _ := run("inspect")
	if code != ExitUsage || stdout != "Usage: xwrap inspect <file.x>\n" {
		t.Errorf("inspect: code = %d, stdout = %q", code, stdout)
	}

	code, stdout, _ = run("unwrap", "only-one.x")
	if code != ExitUsage || stdout != "Usage: xwrap unwrap <file.x> <output.bin>\n" {
		t.Errorf("unwrap: code = %d, stdout = %q", code, stdout)
	}
}

func TestUnwrapCommand(t *testing.T) {
	dir := isolate(t)
	in := filepath.Join(dir, "game.bin")
	x := filepath.Join(dir, "GAME.X")
	back := filepath.Join(dir, "game.out")
	payload := []byte("\x41\xfa\x00\x08\x4e\x75")
	writeFile(t, in, payload)

	if code, _, stderr := run(in, x); code != ExitOK {
		t.Fatalf("wrap failed: %s", stderr)
	}
	code, stdout, stderr := run("unwrap", x, back)
	if code != ExitOK {
		t.Fatalf("unwrap failed: %s", stderr)
	}
	if !strings.HasPrefix(stdout, "Extracted "+back) {
		t.Errorf("stdout = %q", stdout)
	}

	got, _ := os.ReadFile(back)
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip = % x, want % x", got, payload)
	}
}

func TestMetricsFile(t *testing.T) {
	dir := isolate(t)
	in := filepath.Join(dir, "a.bin")
	prom := filepath.Join(dir, "xwrap.prom")
	writeFile(t, in, []byte("abcd"))

	code, _, stderr := run("--metrics-file", prom, in, filepath.Join(dir, "a.x"))
	if code != ExitOK {
		t.Fatalf("wrap failed: %s", stderr)
	}
	data, err := os.ReadFile(prom)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	if !strings.Contains(string(data), `xwrap_operations_total{op="wrap",result="success"} 1`) {
		t.Errorf("unexpected metrics:\n%s", data)
	}

	code, _, _ = run("--metrics-file", prom, filepath.Join(dir, "missing.bin"), filepath.Join(dir, "b.x"))
	if code != ExitFailure {
		t.Fatalf("exit code = %d, want %d", code, ExitFailure)
	}
	data, _ = os.ReadFile(prom)
	if !strings.Contains(string(data), `xwrap_failures_total{kind="read"} 1`) {
		t.Errorf("failure not recorded:\n%s", data)
	}
}

func TestLogLevelFromEnv(t *testing.T) {
	dir := isolate(t)
	t.Setenv("XWRAP_LOG_LEVEL", "debug")
	in := filepath.Join(dir, "a.bin")
	writeFile(t, in, []byte("abcd"))

	code, _, stderr := run(in, filepath.Join(dir, "a.x"))
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr, "DEBUG: Read payload") {
		t.Errorf("expected debug trace on stderr, got %q", stderr)
	}
}

func TestConfigFile(t *testing.T) {
	dir := isolate(t)
	cfg := filepath.Join(dir, "xwrap.yaml")
	writeFile(t, cfg, []byte("log_level: debug\nlog_format: json\n"))
	in := filepath.Join(dir, "a.bin")
	writeFile(t, in, []byte("abcd"))

	code, _, stderr := run("--config", cfg, in, filepath.Join(dir, "a.x"))
	if code != ExitOK {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}

	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	if len(lines) == 0 || lines[0] == "" {
		t.Fatal("no log output")
	}
	for _, line := range lines {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Errorf("log line is not JSON: %q", line)
		}
	}
}

func TestHomeConfigIsPickedUp(t *testing.T) {
	dir := isolate(t)
	if err := os.MkdirAll(filepath.Join(dir, ".xwrap"), 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(dir, ".xwrap", "config.yaml"), []byte("log_level: info\n"))
	in := filepath.Join(dir, "a.bin")
	writeFile(t, in, []byte("abcd"))

	// Flag beats config file
	code, _, stderr := run("--log-level", "debug", in, filepath.Join(dir, "a.x"))
	if code != ExitOK {
		t.Fatalf("exit code = %d, stderr: %s", code, stderr)
	}
	if !strings.Contains(stderr, "Loaded config") {
		t.Errorf("expected config load trace, got %q", stderr)
	}
}

func TestBadLogLevel(t *testing.T) {
	dir := isolate(t)
	in := filepath.Join(dir, "a.bin")
	writeFile(t, in, []byte("abcd"))

	code, _, stderr := run("--log-level", "loud", in, filepath.Join(dir, "a.x"))
	if code != ExitFailure || !strings.Contains(stderr, "unknown log level") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}

func TestMissingConfigFileFlag(t *testing.T) {
	dir := isolate(t)
	in := filepath.Join(dir, "a.bin")
	writeFile(t, in, []byte("abcd"))

	code, _, stderr := run("--config", filepath.Join(dir, "absent.yaml"), in, filepath.Join(dir, "a.x"))
	if code != ExitFailure || !strings.Contains(stderr, "failed to read config") {
		t.Errorf("code = %d, stderr = %q", code, stderr)
	}
}

func TestInputNamedAfterBuiltinCommand(t *testing.T) {
	for _, name := range []string{"help", "completion"} {
		t.Run(name, func(t *testing.T) {
			dir := isolate(t)
			wd, _ := os.Getwd()
			if err := os.Chdir(dir); err != nil {
				t.Fatal(err)
			}
			defer os.Chdir(wd)
			writeFile(t, name, []byte{0x4E, 0x75})

			code, stdout, stderr := run(name, "out.x")
			if code != ExitOK {
				t.Fatalf("exit code = %d, stderr: %s", code, stderr)
			}
			if stdout != "Created out.x: 66 bytes (text=0x2)\n" {
				t.Errorf("stdout = %q", stdout)
			}
			data, err := os.ReadFile("out.x")
			if err != nil {
				t.Fatalf("output missing: %v", err)
			}
			if len(data) != 66 || data[64] != 0x4E || data[65] != 0x75 {
				t.Errorf("unexpected output % x", data)
			}
		})
	}
}

func TestHelpCommand(t *testing.T) {
	dir := isolate(t)
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	code, stdout, _ := run("help", "inspect")
	if code != ExitOK {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout, "xwrap inspect") {
		t.Errorf("help for inspect not shown:\n%s", stdout)
	}

	code, stdout, _ = run("help")
	if code != ExitOK || !strings.Contains(stdout, "Human68k") {
		t.Errorf("root help: exit %d\n%s", code, stdout)
	}

	code, stdout, _ = run("help", "a", "b")
	if code != ExitUsage || stdout != "Usage: xwrap <input.bin> <output.x>\n" {
		t.Errorf("help with two args: exit %d, stdout %q", code, stdout)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		t.Errorf("help created %s", e.Name())
	}
}

func TestCompletionCommandDisabled(t *testing.T) {
	dir := isolate(t)
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	// No file named completion: this is a wrap of a missing input
	code, stdout, stderr := run("completion", "bash")
	if code != ExitFailure {
		t.Errorf("exit code = %d, want %d", code, ExitFailure)
	}
	if stdout != "" || !strings.Contains(stderr, "completion") {
		t.Errorf("stdout %q, stderr %q", stdout, stderr)
	}
}

package cli_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kvmdb/kdbcache/internal/cli"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// Tests for print-config command.

func Test_Print_Config_Defaults_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("print-config")
	cli.AssertContains(t, stdout, "socket_path: /tmp/kdbcache.sock")
	cli.AssertContains(t, stdout, "max_bytes:   unbounded")
	cli.AssertContains(t, stdout, "sources: defaults only")
}

func Test_Print_Config_From_Config_File_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".kdbcache.json"), `{"socket_path": "/run/my.sock", "max_bytes": 1048576}`)

	stdout := c.MustRun("print-config")
	cli.AssertContains(t, stdout, "socket_path: /run/my.sock")
	cli.AssertContains(t, stdout, "max_bytes:   1048576")
	cli.AssertContains(t, stdout, "project config:")
}

func Test_Print_Config_From_Config_File_With_Comments_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".kdbcache.json"), `{
		// Staging socket.
		"socket_path": "/run/staging.sock",
	}`)

	stdout := c.MustRun("print-config")
	cli.AssertContains(t, stdout, "socket_path: /run/staging.sock")
}

func Test_Print_Config_Explicit_Config_Flag_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, "custom.json"), `{"socket_path": "/run/custom.sock"}`)

	stdout := c.MustRun("--config", "custom.json", "print-config")
	cli.AssertContains(t, stdout, "socket_path: /run/custom.sock")
}

func Test_Print_Config_Socket_Override_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".kdbcache.json"), `{"socket_path": "/run/from-file.sock"}`)

	stdout := c.MustRun("--socket", "/run/from-cli.sock", "print-config")
	cli.AssertContains(t, stdout, "socket_path: /run/from-cli.sock")
}

func Test_Print_Config_Global_Config_When_XDG_Set(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	xdg := filepath.Join(c.Dir, "xdg")

	if err := os.MkdirAll(filepath.Join(xdg, "kdbcache"), 0o700); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(xdg, "kdbcache", "config.json"), `{"socket_path": "/run/global.sock"}`)
	c.Env["XDG_CONFIG_HOME"] = xdg

	stdout := c.MustRun("print-config")
	cli.AssertContains(t, stdout, "socket_path: /run/global.sock")
	cli.AssertContains(t, stdout, "global config: ")
}

func Test_Print_Config_Project_Beats_Global_When_Both_Present(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	xdg := filepath.Join(c.Dir, "xdg")

	if err := os.MkdirAll(filepath.Join(xdg, "kdbcache"), 0o700); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(xdg, "kdbcache", "config.json"), `{"socket_path": "/run/global.sock"}`)
	writeFile(t, filepath.Join(c.Dir, ".kdbcache.json"), `{"socket_path": "/run/project.sock"}`)
	c.Env["XDG_CONFIG_HOME"] = xdg

	stdout := c.MustRun("print-config")
	cli.AssertContains(t, stdout, "socket_path: /run/project.sock")
}

// Tests for config errors.

func Test_Config_Explicit_Config_Not_Found_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail("--config", "nonexistent.json", "print-config")
	cli.AssertContains(t, stderr, "config file not found")
}

func Test_Config_Invalid_JSON_When_Invoked(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".kdbcache.json"), `{invalid json}`)

	stderr := c.MustFail("print-config")
	cli.AssertContains(t, stderr, "invalid")
}

func Test_Config_Empty_Socket_Path_Via_CLI_When_Invoked(t *testing.T) {
	t.Parallel()

	// An empty override falls back to the default rather than clearing
	// the path, so only a config file clearing it errors.
	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".kdbcache.json"), `{"socket_path": ""}`)

	stdout := c.MustRun("print-config")
	cli.AssertContains(t, stdout, "socket_path: /tmp/kdbcache.sock")
}

package cli_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/dwcorrupt/internal/cli"
	"github.com/calvinalkan/dwcorrupt/internal/testutil"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func fileExists(t *testing.T, path string) bool {
	t.Helper()

	_, err := os.Stat(path)
	if err == nil {
		return true
	}

	if !os.IsNotExist(err) {
		t.Fatalf("stat %s: %v", path, err)
	}

	return false
}

// legacyDir is a data dir whose legacy buffer holds pages of space 7.
func legacyDir(t *testing.T) *testutil.DataDir {
	t.Helper()

	return testutil.NewDataDir(t, testutil.DataDirOptions{
		PageSize: 4096,
		Layout:   testutil.LayoutLegacy,
		Spaces:   []testutil.Space{{ID: 7, Name: "t1", Pages: 8}},
		Entries:  []testutil.Entry{{Space: 7, Page: 3}},
	})
}

// currentDir is a data dir whose page list names pages of space 7.
func currentDir(t *testing.T) *testutil.DataDir {
	t.Helper()

	return testutil.NewDataDir(t, testutil.DataDirOptions{
		PageSize: 4096,
		Layout:   testutil.LayoutCurrent,
		Spaces:   []testutil.Space{{ID: 7, Name: "t1", Pages: 8}},
		Entries:  []testutil.Entry{{Space: 7, Page: 5}},
	})
}

// newTrialCLI returns a CLI configured for d through a project config file.
func newTrialCLI(t *testing.T, d *testutil.DataDir) *cli.CLI {
	t.Helper()

	c := cli.NewCLI(t)
	writeFile(t, filepath.Join(c.Dir, ".dwcorrupt.json"), fmt.Sprintf(`{
		"data_dir": %q,
		"page_size": %d,
		"log_level": "error",
	}`, d.Dir, d.Format.Size()))

	return c
}

// fakeServer writes a script standing in for the server: it appends marker
// to its --log_error file and then exits with status exit, or keeps running
// when exit is negative. It returns the command to put in MYSQLD_CMD.
func fakeServer(t *testing.T, marker string, exit int) string {
	t.Helper()

	script := filepath.Join(t.TempDir(), "mysqld.sh")

	tail := fmt.Sprintf("exit %d", exit)
	if exit < 0 {
		tail = "sleep 30"
	}

	writeFile(t, script, fmt.Sprintf(`#!/bin/sh
for arg in "$@"; do
  case "$arg" in
    --log_error=*) log="${arg#--log_error=}" ;;
  esac
done
printf '%%s' '%s' >> "$log"
%s
`, marker, tail))

	return "/bin/sh " + script + " --core-file"
}

package cli_test

import (
	"bytes"
	"math/bits"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/dwcorrupt/internal/cli"
	"github.com/calvinalkan/dwcorrupt/internal/config"
	"github.com/calvinalkan/dwcorrupt/internal/oracle"
	"github.com/calvinalkan/dwcorrupt/internal/testutil"
)

// Full mode: the server recovers the page from the buffer and exits.
func Test_Run_Passes_When_Full_Mode_Server_Recovers(t *testing.T) {
	t.Parallel()

	d := legacyDir(t)
	c := newTrialCLI(t, d)
	c.Env["MYSQLD_CMD"] = fakeServer(t, oracle.MarkerRecovered, 0)
	c.Env["MYSQL_TMP_DIR"] = t.TempDir()

	stdout := c.MustRun("run", "--mode", "1", "--seed", "3")
	cli.AssertContains(t, stdout, strings.TrimRight(oracle.MarkerRecovered, "\n"))

	if fileExists(t, filepath.Join(d.Dir, config.RecordFileName)) {
		t.Error("record left behind after passing trial")
	}

	log := filepath.Join(c.Env["MYSQL_TMP_DIR"], "innodb_corrupt_doublewrite-1.log")
	if !fileExists(t, log) {
		t.Errorf("server log %s not written", log)
	}
}

// Reduced mode: the server refuses recovery and hangs or fails; the page is
// restored either way.
func Test_Run_Passes_And_Restores_When_Reduced_Mode_Server_Refuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		exit int
	}{
		{"Hangs", -1},
		{"ExitsNonZero", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := currentDir(t)
			before := d.ReadFile(d.SpacePath(7))

			c := newTrialCLI(t, d)
			c.Env["MYSQLD_CMD"] = fakeServer(t, oracle.MarkerRefused, tt.exit)
			c.Env["MYSQL_TMP_DIR"] = t.TempDir()

			stdout := c.MustRun("run", "--mode", "reduced", "--timeout", "500ms")
			cli.AssertContains(t, stdout, "reduced-doublewrite mode")

			if !bytes.Equal(before, d.ReadFile(d.SpacePath(7))) {
				t.Fatal("tablespace not restored after reduced-mode trial")
			}
		})
	}
}

// Page 0 is reported with its own log text; the trial accepts it in both
// modes.
func Test_Run_Passes_When_Page_Zero_Marker_Logged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		layout string
		mode   string
		marker string
		exit   int
	}{
		{"Full", testutil.LayoutLegacy, "1", oracle.MarkerRecoveredPage0, 0},
		{"Reduced", testutil.LayoutCurrent, "2", oracle.MarkerRefusedPage0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := testutil.NewDataDir(t, testutil.DataDirOptions{
				PageSize: 4096,
				Layout:   tt.layout,
				Spaces:   []testutil.Space{{ID: 7, Name: "t1", Pages: 8}},
			})
			before := d.ReadPage(7, 0)

			c := newTrialCLI(t, d)
			c.Env["MYSQLD_CMD"] = fakeServer(t, tt.marker+"7\n", tt.exit)
			c.Env["MYSQL_TMP_DIR"] = t.TempDir()

			stdout := c.MustRun("run", "--space", "7", "--page", "0", "--mode", tt.mode, "--seed", "5")
			cli.AssertContains(t, stdout, strings.TrimSpace(tt.marker))

			switch tt.layout {
			case testutil.LayoutLegacy:
				if !bytes.Equal(d.ReadFilePage(d.SystemPath, d.Block1), before) {
					t.Error("block1 does not hold the original page 0")
				}
			case testutil.LayoutCurrent:
				if !bytes.Equal(d.ReadPage(7, 0), before) {
					t.Error("page 0 not restored after reduced-mode trial")
				}
			}
		})
	}
}

// A trial on space 7 page 200 with 16 KiB pages, in both modes.
func Test_Run_Handles_Default_Page_Size_When_Page_Deep_In_Space(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		layout string
		mode   string
		marker string
		exit   int
	}{
		{"Full", testutil.LayoutLegacy, "1", oracle.MarkerRecovered, 0},
		{"Reduced", testutil.LayoutCurrent, "2", oracle.MarkerRefused, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := testutil.NewDataDir(t, testutil.DataDirOptions{
				PageSize: 16384,
				Layout:   tt.layout,
				Spaces:   []testutil.Space{{ID: 7, Name: "t1", Pages: 201}},
			})
			before := d.ReadPage(7, 200)

			c := newTrialCLI(t, d)
			c.Env["MYSQLD_CMD"] = fakeServer(t, tt.marker, tt.exit)
			c.Env["MYSQL_TMP_DIR"] = t.TempDir()

			c.MustRun("run", "--space", "7", "--page", "200", "--mode", tt.mode, "--timeout", "500ms", "--seed", "9")

			after := d.ReadPage(7, 200)

			switch tt.layout {
			case testutil.LayoutLegacy:
				if !bytes.Equal(d.ReadFilePage(d.SystemPath, d.Block1), before) {
					t.Fatal("block1 does not hold the original page")
				}

				flipped := 0
				for i := range before {
					flipped += bits.OnesCount8(before[i] ^ after[i])
				}

				if flipped != 1 {
					t.Fatalf("%d bits differ in the live page, want 1", flipped)
				}
			case testutil.LayoutCurrent:
				if !bytes.Equal(after, before) {
					t.Fatal("page 200 differs from the original after restore")
				}
			}
		})
	}
}

// Full mode where the server never logs recovery: verdict failure, log on
// stderr, record kept for a manual restore.
func Test_Run_Fails_When_Full_Mode_Log_Lacks_Recovery(t *testing.T) {
	t.Parallel()

	d := legacyDir(t)
	c := newTrialCLI(t, d)
	c.Env["MYSQLD_CMD"] = fakeServer(t, "InnoDB: Database page corruption on disk\n", 1)
	c.Env["MYSQL_TMP_DIR"] = t.TempDir()

	stderr := c.MustFail(cli.ExitFailure, "run", "--mode", "1")
	cli.AssertContains(t, stderr, "Database page corruption on disk")
	cli.AssertContains(t, stderr, "doublewrite buffer was not used")

	if !fileExists(t, filepath.Join(d.Dir, config.RecordFileName)) {
		t.Fatal("record missing after failed trial")
	}

	c.MustRun("restore")

	if !bytes.Equal(d.ReadPage(7, 3), d.SpacePage(7, 3)) {
		t.Fatal("page not restored from record")
	}
}

// Full mode where the server is still starting at the timeout.
func Test_Run_Fails_When_Full_Mode_Server_Hangs(t *testing.T) {
	t.Parallel()

	d := legacyDir(t)
	c := newTrialCLI(t, d)
	c.Env["MYSQLD_CMD"] = fakeServer(t, oracle.MarkerRecovered, -1)
	c.Env["MYSQL_TMP_DIR"] = t.TempDir()

	stderr := c.MustFail(cli.ExitFailure, "run", "--mode", "1", "--timeout", "500ms")
	cli.AssertContains(t, stderr, "did not finish recovery")
}

// Mode 2 against a legacy buffer: rejected before any write.
func Test_Run_Exits_Wrong_Mode_When_Layout_Mismatched(t *testing.T) {
	t.Parallel()

	d := legacyDir(t)
	system := d.ReadFile(d.SystemPath)
	space := d.ReadFile(d.SpacePath(7))

	c := newTrialCLI(t, d)
	c.Env["MYSQLD_CMD"] = fakeServer(t, "", 0)
	c.Env["MYSQL_TMP_DIR"] = t.TempDir()

	stderr := c.MustFail(cli.ExitWrongMode, "run", "--mode", "2")
	cli.AssertContains(t, stderr, "found legacy")

	if !bytes.Equal(system, d.ReadFile(d.SystemPath)) {
		t.Error("system file modified")
	}

	if !bytes.Equal(space, d.ReadFile(d.SpacePath(7))) {
		t.Error("tablespace modified")
	}

	if fileExists(t, filepath.Join(d.Dir, config.RecordFileName)) {
		t.Error("record written")
	}
}

func Test_Run_Exits_Config_When_Server_Not_Configured(t *testing.T) {
	t.Parallel()

	c := newTrialCLI(t, legacyDir(t))

	stderr := c.MustFail(cli.ExitConfig, "run")
	cli.AssertContains(t, stderr, "MYSQLD_CMD")
}

func Test_Run_Exits_Config_When_Mode_Invalid(t *testing.T) {
	t.Parallel()

	c := newTrialCLI(t, legacyDir(t))
	c.Env["MYSQLD_CMD"] = "true"
	c.Env["MYSQL_TMP_DIR"] = t.TempDir()

	stderr := c.MustFail(cli.ExitConfig, "run", "--mode", "3")
	cli.AssertContains(t, stderr, "invalid mode")
}

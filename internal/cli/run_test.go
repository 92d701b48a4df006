package cli_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/dwcorrupt/internal/cli"
)

func Test_Run_Prints_Usage_When_No_Command(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun()

	cli.AssertContains(t, stdout, "Usage: dwcorrupt")

	for _, name := range []string{"run", "corrupt", "restore", "inspect", "spaces", "print-config"} {
		cli.AssertContains(t, stdout, "\n  "+name)
	}
}

func Test_Run_Exits_Config_When_Command_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail(cli.ExitConfig, "explode")

	cli.AssertContains(t, stderr, "unknown command: explode")
}

func Test_Run_Exits_Config_When_Global_Flag_Unknown(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustFail(cli.ExitConfig, "--bogus", "spaces")
}

func Test_Command_Help_Shows_Flags_When_Requested(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stdout := c.MustRun("run", "--help")

	cli.AssertContains(t, stdout, "Usage: dwcorrupt run")
	cli.AssertContains(t, stdout, "--timeout")
	cli.AssertContains(t, stdout, "--seed")
}

func Test_Command_Help_Lists_Exit_Codes_When_Command_Writes(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)

	for _, name := range []string{"run", "corrupt", "restore"} {
		cli.AssertContains(t, c.MustRun(name, "--help"), "Exit codes:")
	}

	cli.AssertNotContains(t, c.MustRun("spaces", "--help"), "Exit codes:")
}

func Test_Command_Exits_Config_When_Positional_Argument_Given(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail(cli.ExitConfig, "inspect", "ibdata1")

	cli.AssertContains(t, stderr, `unexpected argument "ibdata1"`)
}

func Test_Command_Exits_Config_When_Flag_Invalid(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	c.MustFail(cli.ExitConfig, "corrupt", "--page", "minus-one")
}

func Test_Spaces_Lists_Index_When_Data_Dir_Given(t *testing.T) {
	t.Parallel()

	d := legacyDir(t)
	c := cli.NewCLI(t)

	stdout := c.MustRun("-d", d.Dir, "--config", writeConfig(t, c, `{"page_size": 4096}`), "spaces")

	lines := strings.Split(stdout, "\n")
	if got, want := len(lines), 2; got != want {
		t.Fatalf("lines=%d, want=%d\n%s", got, want, stdout)
	}

	cli.AssertContains(t, lines[0], "0\t"+d.SystemPath)
	cli.AssertContains(t, lines[1], "7\t"+d.SpacePath(7))
}

func Test_Spaces_Exits_Config_When_Data_Dir_Missing(t *testing.T) {
	t.Parallel()

	c := cli.NewCLI(t)
	stderr := c.MustFail(cli.ExitConfig, "spaces")

	cli.AssertContains(t, stderr, "data_dir is required")
}

func Test_Inspect_Shows_Legacy_Entries_When_Invoked(t *testing.T) {
	t.Parallel()

	d := legacyDir(t)
	c := newTrialCLI(t, d)

	stdout := c.MustRun("inspect")
	cli.AssertContains(t, stdout, "magic=536853855")
	cli.AssertContains(t, stdout, "layout=legacy")
	cli.AssertContains(t, stdout, "entries=1")
	cli.AssertContains(t, stdout, "space_id=7 page_no=3")
}

func Test_Inspect_Exits_Config_When_Buffer_Absent(t *testing.T) {
	t.Parallel()

	d := legacyDir(t)
	data := d.ReadFile(d.SystemPath)

	// Clear the magic of the header on page 5.
	off := 5*4096 + 4096 - 200 + 10
	copy(data[off:off+4], []byte{0, 0, 0, 0})
	writeFile(t, d.SystemPath, string(data))

	c := newTrialCLI(t, d)
	stderr := c.MustFail(cli.ExitConfig, "inspect")

	cli.AssertContains(t, stderr, "doublewrite buffer not found")
}

func writeConfig(t *testing.T, c *cli.CLI, content string) string {
	t.Helper()

	path := filepath.Join(c.Dir, "custom.json")
	writeFile(t, path, content)

	return path
}

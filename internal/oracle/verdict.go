package oracle

import (
	"fmt"
	"strings"

	"github.com/calvinalkan/dwcorrupt/internal/dblwr"
)

// Server log markers.
const (
	MarkerRecovered      = "InnoDB: Trying to recover it from the doublewrite buffer.\n"
	MarkerRecoveredPage0 = "InnoDB: Restoring page 0 of tablespace "
	MarkerRefused        = "InnoDB: Cannot recover it from the doublewrite buffer because it was written in reduced-doublewrite mode.\n"
	MarkerRefusedPage0   = "InnoDB: Doublewrite does not have page_no=0 of space: "
)

// VerdictError reports a trial whose outcome contradicts the mode.
type VerdictError struct {
	Mode   dblwr.Mode
	Entry  dblwr.Entry
	Reason string
	Log    string
}

func (e *VerdictError) Error() string {
	return fmt.Sprintf("%s (doublewrite=%d, %s)", e.Reason, int(e.Mode), e.Entry)
}

// Judge checks outcome against mode for the corrupted page e and returns the
// log marker that confirmed the expected behavior.
//
// In full mode the server must have exited within the timeout and its log
// must show recovery from the buffer. In reduced mode the server must either
// still be hung at the timeout or have exited with a non-zero status, and its
// log must show that recovery was refused. The page-0 variants of each marker
// are accepted for any page.
func Judge(mode dblwr.Mode, e dblwr.Entry, out Outcome) (string, error) {
	fail := func(reason string) error {
		return &VerdictError{Mode: mode, Entry: e, Reason: reason, Log: out.Log}
	}

	switch mode {
	case dblwr.ModeFull:
		if !out.Exited {
			return "", fail(fmt.Sprintf("server did not finish recovery in full doublewrite mode (%s)", out))
		}

		if m, ok := findMarker(out.Log, MarkerRecovered, MarkerRecoveredPage0); ok {
			return m, nil
		}

		return "", fail(fmt.Sprintf("doublewrite buffer was not used even though the page was corrupt (%s)", out))
	case dblwr.ModeReduced:
		if out.Exited && out.ExitCode == 0 {
			return "", fail("server exited cleanly even though reduced durability was used")
		}

		if m, ok := findMarker(out.Log, MarkerRefused, MarkerRefusedPage0); ok {
			return m, nil
		}

		return "", fail(fmt.Sprintf("doublewrite did not fail to recover as expected (%s)", out))
	default:
		return "", fmt.Errorf("%w: %d", dblwr.ErrInvalidMode, int(mode))
	}
}

func findMarker(log string, markers ...string) (string, bool) {
	for _, m := range markers {
		if strings.Contains(log, m) {
			return m, true
		}
	}

	return "", false
}

package dblwr

import (
	"errors"
	"fmt"
	"strconv"
)

// Mode is the requested durability mode of a trial.
type Mode int

const (
	// ModeFull keeps complete page images in the buffer; recovery repairs.
	ModeFull Mode = 1
	// ModeReduced keeps page identities only; recovery must refuse.
	ModeReduced Mode = 2
)

// ErrInvalidMode is returned by [ParseMode] for values other than 1 or 2.
var ErrInvalidMode = errors.New("invalid mode")

// ParseMode accepts "1", "2", "full" or "reduced".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "1", "full":
		return ModeFull, nil
	case "2", "reduced":
		return ModeReduced, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}

	return 0, fmt.Errorf("%w: %d (want 1 or 2)", ErrInvalidMode, n)
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeFull || m == ModeReduced
}

// ExpectedLayout returns the buffer layout a server running in mode m writes.
func (m Mode) ExpectedLayout() Layout {
	if m == ModeReduced {
		return LayoutCurrent
	}

	return LayoutLegacy
}

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeReduced:
		return "reduced"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// WrongModeError reports that the requested mode does not match the layout
// found on disk. Nothing was written when it is returned.
type WrongModeError struct {
	Mode   Mode
	Layout Layout
}

func (e *WrongModeError) Error() string {
	return fmt.Sprintf("mode %d (%s) needs a %s doublewrite buffer, found %s",
		int(e.Mode), e.Mode, e.Mode.ExpectedLayout(), e.Layout)
}

package cli

import (
	"errors"

	"github.com/calvinalkan/dwcorrupt/internal/config"
	"github.com/calvinalkan/dwcorrupt/internal/dblwr"
	"github.com/calvinalkan/dwcorrupt/internal/inject"
	"github.com/calvinalkan/dwcorrupt/internal/logging"
	"github.com/calvinalkan/dwcorrupt/internal/oracle"
	"github.com/calvinalkan/dwcorrupt/internal/page"
	"github.com/calvinalkan/dwcorrupt/internal/tablespace"
	"github.com/calvinalkan/dwcorrupt/pkg/fs"
)

// Process exit codes.
const (
	ExitOK        = 0 // trial passed or command succeeded
	ExitFailure   = 1 // verdict failed or an operation errored
	ExitConfig    = 2 // configuration or precondition not met
	ExitWrongMode = 3 // mode does not match the doublewrite layout on disk
)

var configErrors = []error{
	config.ErrConfigFileNotFound,
	config.ErrConfigFileRead,
	config.ErrConfigInvalid,
	config.ErrInvalidTimeout,
	config.ErrDataDirRequired,
	config.ErrServerCmdRequired,
	config.ErrTmpDirRequired,
	dblwr.ErrInvalidMode,
	dblwr.ErrBufferAbsent,
	page.ErrInvalidPageSize,
	logging.ErrInvalidFormat,
	tablespace.ErrTruncatedFile,
	fs.ErrWouldBlock,
	oracle.ErrNoCommand,
	inject.ErrNoCandidates,
	tablespace.ErrUnknownSpace,
	errPendingRecord,
	errUsage,
}

func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var wrongMode *dblwr.WrongModeError
	if errors.As(err, &wrongMode) {
		return ExitWrongMode
	}

	for _, target := range configErrors {
		if errors.Is(err, target) {
			return ExitConfig
		}
	}

	return ExitFailure
}

// reportError prints err, plus the full server log for a failed verdict.
func reportError(o *IO, err error) {
	var verdict *oracle.VerdictError
	if errors.As(err, &verdict) && verdict.Log != "" {
		o.ErrPrintln(verdict.Log)
	}

	o.ErrPrintln("error:", err)
}

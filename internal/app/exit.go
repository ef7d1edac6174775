package app

import (
	"errors"

	"github.com/oshokin/quaso-pack/internal/domain/pack"
	"github.com/oshokin/quaso-pack/internal/ops"
	"github.com/oshokin/quaso-pack/internal/service/common"
)

// Process exit codes.
const (
	ExitOK              = 0
	ExitFailure         = 1
	ExitUsage           = 2
	ExitBuild           = 3
	ExitMissingArtifact = 4
	ExitEmptyStage      = 5
	ExitBusy            = 6
	ExitRunInProgress   = 7
)

// ErrUsage marks invalid command-line input.
var ErrUsage = errors.New("usage error")

// ExitCode maps an operation error onto the process exit code. The code
// identifies the failing stage.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	switch {
	case errors.Is(err, common.ErrRunInProgress):
		return ExitRunInProgress
	case errors.Is(err, ErrUsage), errors.Is(err, ops.ErrUnknownOperation), errors.Is(err, ops.ErrUnknownParam):
		return ExitUsage
	}

	switch pack.StageOf(err) {
	case pack.StageResolve:
		return ExitUsage
	case pack.StageBuild:
		return ExitBuild
	case pack.StageStage:
		return ExitMissingArtifact
	case pack.StageArchive:
		return ExitEmptyStage
	case pack.StageClean:
		return ExitBusy
	default:
		return ExitFailure
	}
}

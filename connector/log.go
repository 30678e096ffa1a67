package connector

import (
	"github.com/decred/slog"
	"github.com/interledger/go-ilp-connector/btp"
	"github.com/interledger/go-ilp-connector/ccp"
	"github.com/interledger/go-ilp-connector/exchangerate"
	"github.com/interledger/go-ilp-connector/internal/buildlog"
	"github.com/interledger/go-ilp-connector/middleware"
	"github.com/interledger/go-ilp-connector/settlement"
)

// Loggers per subsystem: one tagged logger per package sharing a
// single backend, wired via each package's UseLogger hook.
var (
	mdlwLog = buildlog.NewSubLogger("MDLW")
	xchgLog = buildlog.NewSubLogger("XCHG")
	ccpmLog = buildlog.NewSubLogger("CCPM")
	btptLog = buildlog.NewSubLogger("BTPT")
	stlmLog = buildlog.NewSubLogger("STLM")
	cnctLog = buildlog.NewSubLogger("CNCT")
)

func init() {
	middleware.UseLogger(mdlwLog)
	exchangerate.UseLogger(xchgLog)
	ccp.UseLogger(ccpmLog)
	btp.UseLogger(btptLog)
	settlement.UseLogger(stlmLog)
}

var subsystemLoggers = map[string]slog.Logger{
	"MDLW": mdlwLog,
	"XCHG": xchgLog,
	"CCPM": ccpmLog,
	"BTPT": btptLog,
	"STLM": stlmLog,
	"CNCT": cnctLog,
}

// SetLogLevel sets the logging level for one subsystem tag; unknown
// tags are ignored.
func SetLogLevel(subsystem, level string) {
	logger, ok := subsystemLoggers[subsystem]
	if !ok {
		return
	}
	lvl, _ := slog.LevelFromString(level)
	logger.SetLevel(lvl)
}

// SetLogLevels sets every subsystem logger to level.
func SetLogLevels(level string) {
	for subsystem := range subsystemLoggers {
		SetLogLevel(subsystem, level)
	}
}

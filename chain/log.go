package chain

import "github.com/btcsuite/btclog"

// log is the package-level logger, following the same convention as the
// rest of lnd: a disabled-by-default logger that the caller wires up via
// UseLogger once a concrete backend is available.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by the chain connector.
// The chain/sequencer package has its own logger and UseLogger.
func UseLogger(logger btclog.Logger) {
	log = logger
}

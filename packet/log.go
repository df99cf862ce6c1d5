package packet

import "github.com/btcsuite/btclog"

// log is the package-level logger, following the same disabled-by-
// default + UseLogger convention used throughout this module.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by the packet decoder.
func UseLogger(logger btclog.Logger) {
	log = logger
}

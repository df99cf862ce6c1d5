package session

import "github.com/btcsuite/btclog"

// log is the package-level logger, following the same disabled-by-
// default + UseLogger convention as chain and packet.
var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by the session protocol.
func UseLogger(logger btclog.Logger) {
	log = logger
}

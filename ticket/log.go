package ticket

import "github.com/btcsuite/btclog"

var log btclog.Logger = btclog.Disabled

// UseLogger sets the package-wide logger used by the ticket tracker and
// redemption pipeline.
func UseLogger(logger btclog.Logger) {
	log = logger
}

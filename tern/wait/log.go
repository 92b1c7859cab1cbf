// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package wait

import "github.com/tern-wallet/tern/tern"

// log is the package logger. It defaults to disabled output until UseLogger
// is called.
var log = tern.Disabled

// UseLogger sets the logger for the wait package.
func UseLogger(logger tern.Logger) {
	log = logger
}

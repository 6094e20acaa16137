// Package butido holds the small set of process-lifecycle helpers every
// cmd/butido subcommand shares: cancelling a build on SIGINT/SIGTERM, and
// running cleanup funcs before the process exits.
package butido

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// InterruptibleContext returns a context which is canceled when the program is
// interrupted (i.e. receiving SIGINT or SIGTERM), so a `butido build` can stop
// dispatching new jobs and let in-flight containers unwind instead of being
// killed outright.
func InterruptibleContext() (context.Context, context.CancelFunc) {
	ctx, canc := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		// Subsequent signals will result in immediate termination, which is
		// useful in case cleanup hangs:
		signal.Stop(sig)
		canc()
	}()
	return ctx, canc
}

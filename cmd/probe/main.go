// Command probe is a headless participant: it signs in as a guest, queues
// for a match, negotiates a WebRTC connection with the partner over the
// signaling server and streams paced synthetic video whose bitrate follows
// the adaptive quality controller.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairline/pkg/logger"

	"github.com/spf13/pflag"
)

type options struct {
	server      string
	displayName string
	gender      string
	prefer      string
	duration    time.Duration
	rematch     bool
	logLevel    string
	portMin     uint16
	portMax     uint16
}

func main() {
	var opts options
	flags := pflag.NewFlagSet("probe", pflag.ContinueOnError)
	flags.StringVar(&opts.server, "server", "http://localhost:8080", "base URL of the signaling server")
	flags.StringVar(&opts.displayName, "name", "probe", "display name shown to partners")
	flags.StringVar(&opts.gender, "gender", "", "self-declared gender (male, female or empty)")
	flags.StringVar(&opts.prefer, "prefer", "", "preferred partner gender")
	flags.DurationVar(&opts.duration, "duration", time.Minute, "how long to stay connected, 0 runs until interrupted")
	flags.BoolVar(&opts.rematch, "rematch", false, "queue again after each session ends")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level")
	flags.Uint16Var(&opts.portMin, "udp-port-min", 0, "lower bound of the ICE UDP port range")
	flags.Uint16Var(&opts.portMax, "udp-port-max", 0, "upper bound of the ICE UDP port range")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	zapLogger := logger.NewWithFormat(opts.logLevel, "console")
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if opts.duration > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, opts.duration)
		defer timeoutCancel()
	}

	if err := run(ctx, opts, log); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Fatalw("probe failed", "error", err)
	}
	log.Info("probe finished")
}

// Command scanctl is a minimal CLI exercising session.Session end to
// end: move/pin/scan/status subcommands over a real serial device or,
// with --dry-run, an in-memory mock transport. It plays the role
// samoyed/cmd/direwolf's main.go gives its pflag-parsed entry point,
// scaled down to this controller's handful of operations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/hexastorm/core/config"
	"github.com/hexastorm/core/frame"
	"github.com/hexastorm/core/params"
	"github.com/hexastorm/core/scanline"
	"github.com/hexastorm/core/session"
	"github.com/hexastorm/core/transport"
)

func main() {
	var configFile = pflag.StringP("config", "c", "scanctl.yaml", "Scanner configuration file.")
	var devicePath = pflag.StringP("device", "d", "/dev/ttyUSB0", "Serial device path.")
	var baud = pflag.IntP("baud", "b", 115200, "Serial baud rate.")
	var logLevel = pflag.StringP("log-level", "l", "info", "Log level: debug, info, warn, error.")
	var dryRun = pflag.Bool("dry-run", false, "Use an in-memory mock transport instead of a real device.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: scanctl [flags] <status|start|stop|pin|move|scan> [args...]")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help || len(pflag.Args()) == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	var logger = log.New(os.Stderr)
	if lvl, err := log.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(lvl)
	}

	var model, cfgErr = config.Load(*configFile)
	if cfgErr != nil {
		logger.Fatal("load config", "err", cfgErr)
	}

	var tr Transport
	if *dryRun {
		tr = &transport.MockTransport{Default: frame.Reply{Status: 0}}
		logger.Info("dry-run: using mock transport")
	} else {
		var realTr, err = transport.OpenSerial(*devicePath, *baud, nil)
		if err != nil {
			logger.Fatal("open serial device", "device", *devicePath, "err", err)
		}
		defer realTr.Close()
		tr = realTr
	}

	var sess = session.New(tr, model, session.WithLogger(logger))

	var ctx, cancel = signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var args = pflag.Args()
	var cmdErr error
	switch args[0] {
	case "status":
		cmdErr = runStatus(ctx, sess)
	case "start":
		_, cmdErr = sess.Start(ctx)
	case "stop":
		_, cmdErr = sess.Stop(ctx)
	case "pin":
		cmdErr = runPin(ctx, sess, args[1:])
	case "move":
		cmdErr = runMove(ctx, sess, args[1:])
	case "scan":
		cmdErr = runScan(ctx, sess, model, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "scanctl: unknown subcommand %q\n", args[0])
		pflag.Usage()
		os.Exit(2)
	}

	if cmdErr != nil {
		logger.Fatal("command failed", "err", cmdErr)
	}
}

// Transport is the session.Transport interface, restated locally so
// main can hold either a *transport.SerialTransport or
// *transport.MockTransport through one variable without importing
// session's unexported details.
type Transport = session.Transport

func runStatus(ctx context.Context, sess *session.Session) error {
	var status, aux, err = sess.ReadState(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("status: %s aux=0x%016x\n", status, aux)

	var positions, posErr = sess.ReadPosition(ctx)
	if posErr != nil {
		return posErr
	}
	fmt.Printf("position: %v\n", positions)
	return nil
}

func runPin(ctx context.Context, sess *session.Session, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("scanctl: pin requires one hex vector argument")
	}
	var vector, err = strconv.ParseUint(args[0], 0, 8)
	if err != nil {
		return fmt.Errorf("scanctl: parse pin vector: %w", err)
	}
	return sess.SetPins(ctx, byte(vector))
}

func runMove(ctx context.Context, sess *session.Session, args []string) error {
	if len(args) < 4 || (len(args)-1)%3 != 0 {
		return fmt.Errorf("scanctl: move requires <ticks> <c0> <c1> <c2> [<c0> <c1> <c2> ...]")
	}

	var ticks, err = strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("scanctl: parse ticks: %w", err)
	}

	var motors = (len(args) - 1) / 3
	var coefs = make([][3]int64, motors)
	for m := 0; m < motors; m++ {
		for j := 0; j < 3; j++ {
			var v, perr = strconv.ParseInt(args[1+3*m+j], 10, 64)
			if perr != nil {
				return fmt.Errorf("scanctl: parse coefficient: %w", perr)
			}
			coefs[m][j] = v
		}
	}

	return sess.Move(ctx, ticks, coefs)
}

func runScan(ctx context.Context, sess *session.Session, model params.Model, args []string) error {
	var bits = make([]bool, model.BitsPerLine())
	if len(args) == 1 {
		for i, r := range strings.TrimSpace(args[0]) {
			if i >= len(bits) {
				break
			}
			bits[i] = r == '1'
		}
	}

	return scanline.Run(ctx, sess, scanline.Config{
		Direction:    model.Direction() == params.Forward,
		SpinupS:      model.SpinupS(),
		StableS:      model.StableS(),
		PollInterval: 10 * time.Millisecond,
		StableBit:    0,
		SingleLine:   model.SingleLine(),
	}, bits, ctx.Done())
}

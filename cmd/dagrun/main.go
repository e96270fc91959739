package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"

	"dagrun/internal/app"
)

// Exit codes.
const (
	exitOK      = 0
	exitFatal   = 1
	exitFailed  = 2
	exitStopped = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	var opt app.Options
	var check bool
	flag.StringVar(&opt.ConfigPath, "config", "./dagrun.yaml", "path to config yaml/json")
	flag.StringVar(&opt.JobsPath, "jobs", "", "path to job manifest (overrides scheduler.jobs)")
	flag.BoolVar(&check, "check", false, "validate config and manifest, print the jobs and exit")
	flag.Parse()

	a, err := app.New(opt)
	if err != nil {
		fmt.Println("fatal:", err)
		return exitFatal
	}
	defer a.Close()

	if check {
		for _, j := range a.Jobs() {
			fmt.Printf("%s\tstart_at=%s\ttries=%d\tdeps=%v\n", j.Name(), j.StartAt().Format("2006-01-02 15:04:05"), j.TriesLeft(), j.DependsOn())
		}
		return exitOK
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// No-op outside systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	rep, err := a.Run(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	fmt.Println(rep.Summary())
	switch {
	case err != nil:
		fmt.Println("fatal run:", err)
		return exitFatal
	case rep.Interrupted:
		return exitStopped
	case !rep.OK():
		return exitFailed
	}
	return exitOK
}

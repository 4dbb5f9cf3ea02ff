package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/five82/mochiyoru/internal/app"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "override config path (optional)")
	prefsPath := flag.String("prefs", "", "override UI preferences path (optional)")
	group := flag.String("group", "", "share URL, /group/<id> path, or group id to open")
	pollSeconds := flag.Int("poll", 0, "fallback refresh interval in seconds (optional, defaults to 5s)")
	share := flag.Bool("share", false, "print the group's share URL and exit")
	flag.Parse()

	location := *group
	if location == "" && flag.NArg() > 0 {
		location = flag.Arg(0)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := app.Options{
		ConfigPath: *configPath,
		PrefsPath:  *prefsPath,
		Location:   location,
		ShareOnly:  *share,
		Out:        os.Stdout,
	}
	if poll := *pollSeconds; poll > 0 {
		opts.PollEvery = poll
	}

	if err := app.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "mochiyoru: %v\n", err)
		return 1
	}
	return 0
}

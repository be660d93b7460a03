package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ReqTrack/internal/cli"
)

// version задается при сборке: -ldflags "-X main.version=1.2.3"
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	app := cli.NewApp(cli.WithVersion(version))
	err := app.Execute(ctx, os.Args[1:])
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

// Command ordersync synchronizes marketplace order state from lifecycle events.
package main

import (
	"context"
	"os"

	"github.com/roach88/ordersync/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

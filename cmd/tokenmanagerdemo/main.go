// Command tokenmanagerdemo is ambient developer tooling: it wires config
// loading, logging, and a Manager together and exposes a couple of HTTP
// endpoints, the way cmd/claudine wires the proxy it fronts. It is not
// part of the tokenmanager library itself.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hatchtoken/tokenmanager/cmd/tokenmanagerdemo/commands"
)

func main() {
	if err := commands.Root().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "tokenmanagerdemo:", err)
		os.Exit(1)
	}
}

// Command pubsub runs and inspects in-process publish/subscribe scenarios.
package main

import (
	"context"
	"os"

	"github.com/Iron-Ham/pubsub/internal/cmd"
)

func main() {
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

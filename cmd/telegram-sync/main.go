// Command telegram-sync is the process entry point: it hands off to the
// cobra command tree in internal/cli and maps the resulting exit code, per
// the external interface contract of spec.md §6.4.
package main

import (
	"os"

	"telegram-sync/internal/cli"
)

func main() {
	os.Exit(int(cli.Execute()))
}

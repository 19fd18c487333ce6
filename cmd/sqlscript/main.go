// Command sqlscript runs and serves parameterized SQL scripts.
package main

import (
	"os"

	"github.com/roach88/sqlscript/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}

// Command litewrap is a contention-tolerant SQLite shell.
package main

import "github.com/mesh-intelligence/litewrap/internal/cli"

func main() {
	cli.Execute()
}

package main

import (
	"github.com/queuectl/queuectl/pkg/cli"
)

func main() {
	cli.Execute(cli.NewRootCommand(cli.Options{
		Name:        "queuectl",
		Description: "Persistent local job queue for shell commands",
	}))
}

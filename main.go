package main

import (
	"github.com/couchkit/couchkit/cmd"
)

func main() {
	cmd.Execute()
}

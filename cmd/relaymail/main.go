package main

import (
	"github.com/solarnautics/relaymail/pkg/root"

	_ "github.com/solarnautics/relaymail/pkg/console" // Register commands
)

func main() {
	root.Execute()
}

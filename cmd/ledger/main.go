package main

import "github.com/Fi44er/casino_ledger/cmd/ledger/cmd"

func main() {
	cmd.Execute()
}

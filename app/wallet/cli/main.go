package main

import "github.com/trinitychain/trinitychain/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}

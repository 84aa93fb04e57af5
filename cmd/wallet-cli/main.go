package main

import "custody-wallet/cmd/wallet-cli/cmd"

func main() {
	cmd.Execute()
}

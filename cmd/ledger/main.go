// Command ledger imports bank statement files into the transaction ledger.
//
//	ledger migrate
//	ledger import statement.csv --account checking
//	ledger history
//	ledger serve
//
// Configuration comes from the environment (and a .env file in the working
// directory); see internal/config for the variables.
package main

import (
	"fmt"
	"os"

	"github.com/JonMunkholm/ledger/internal/core"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if core.IsUserFacing(err) {
			fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/bronystylecrazy/tiered/cmd"
)

func main() {
	if err := cmd.NewApp().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

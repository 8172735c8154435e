package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keel-rt/keel/internal/kernel"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the kernel version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("keel", kernel.Version)
	},
}

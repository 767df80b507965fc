package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var genhashCost int

var genhashCmd = &cobra.Command{
	Use:   "genhash <secreto>",
	Short: "Imprime el hash bcrypt de una contrasena o PIN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := bcrypt.GenerateFromPassword([]byte(args[0]), genhashCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(h))
		return nil
	},
}

func init() {
	genhashCmd.Flags().IntVar(&genhashCost, "cost", 12, "costo bcrypt")
}

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk-intake/internal/auth"
)

var hashCost int

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key [key]",
	Short: "Print the bcrypt hash for AUTH_OPERATOR_KEY_HASH",
	Long:  "Hash an operator key. With no argument the key is read from the first line of stdin.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var key string
		if len(args) == 1 {
			key = args[0]
		} else {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read key: %w", err)
			}
			key = strings.TrimRight(line, "\r\n")
		}
		if key == "" {
			return fmt.Errorf("empty key")
		}
		hash, err := auth.HashKey(key, hashCost)
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().IntVar(&hashCost, "cost", 12, "bcrypt cost")
}

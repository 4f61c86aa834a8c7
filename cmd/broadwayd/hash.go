package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-broadway/broadway/pkg/display"
)

func hashCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "hash [password]",
		Short: "Hash a password for the password file",
		Long: `Hash a password with bcrypt for a broadwayd password file.

With no argument the password is read from standard input. The hash
is printed to standard output unless --output names a file to write.

The server reads the file named by password_file in broadwayd.yaml,
falling back to ` + display.PasswordFileName + ` in the user config directory.

Examples:
  broadwayd hash
  broadwayd hash s3cret --output /etc/broadway.passwd`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHash(args, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the hash to this file instead of stdout")

	return cmd
}

func runHash(args []string, output string) error {
	var password string
	if len(args) == 1 {
		password = args[0]
	} else {
		fmt.Fprint(os.Stderr, "Password: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return fmt.Errorf("password must not be empty")
	}

	hash, err := display.HashPassword(password)
	if err != nil {
		return err
	}

	if output == "" {
		fmt.Println(hash)
		return nil
	}
	if err := os.WriteFile(output, []byte(hash+"\n"), 0600); err != nil {
		return err
	}
	success("Password file written: %s", output)
	info("Point password_file in broadwayd.yaml at it, or pass --password-file to serve")
	return nil
}

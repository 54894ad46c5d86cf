package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newEncryptCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt [value]",
		Short: "Encrypt an API key for settings.api_key",
		Long: `Encrypt a value with the configured key material. The value is read
from standard input when not given as an argument.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				sc := bufio.NewScanner(cmd.InOrStdin())
				if sc.Scan() {
					value = sc.Text()
				}
				if err := sc.Err(); err != nil {
					return err
				}
			}
			value = strings.TrimSpace(value)
			if value == "" {
				return errors.New("nothing to encrypt")
			}

			cipher, err := newCipher(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			out, err := cipher.Encrypt(value)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/routewarden/routewarden/internal/domain/auth"
)

var hashKeyArgon bool

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key <api-key>",
	Short: "Generate a hash for an API key",
	Long: `Generate a hash of an API key for the auth.api_keys.key_hash field.

By default the output is "sha256:<hex>". With --argon2id the output is an
Argon2id PHC string, which resists offline guessing at the cost of slower
verification.

Example:
  routewarden hash-key "my-secret-api-key"
  routewarden hash-key --argon2id "my-secret-api-key"

Security note: the key will appear in shell history. Consider using an
environment variable:
  routewarden hash-key "$MY_API_KEY"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if hashKeyArgon {
			hash, err := auth.HashKeyArgon2id(args[0])
			if err != nil {
				return fmt.Errorf("failed to hash key: %w", err)
			}
			fmt.Println(hash)
			return nil
		}
		fmt.Printf("sha256:%s\n", auth.HashKey(args[0]))
		return nil
	},
}

func init() {
	hashKeyCmd.Flags().BoolVar(&hashKeyArgon, "argon2id", false, "use Argon2id instead of SHA-256")
	rootCmd.AddCommand(hashKeyCmd)
}

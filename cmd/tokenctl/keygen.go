package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goToken/keys"
)

func newKeygenCmd(a *app) *cobra.Command {
	var (
		kid     string
		keyType string
		bits    int
	)
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new key version in the key directory",
		Long: `Generate writes <kid>.<version>.pem (or .key for symmetric keys) to the key
directory. The version is one past the highest existing version of kid, so
generating under an existing kid rotates it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := a.v.GetString(keysKey)
			next := 1
			if existing, err := keys.LoadDir(dir); err == nil {
				next = existing.NextVersion(kid)
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}

			ref, err := keys.GenerateKey(keys.Type(keyType), bits)
			if err != nil {
				return err
			}
			ref.Kid, ref.Version = kid, next
			path, err := keys.WriteKey(dir, ref)
			if err != nil {
				return fmt.Errorf("writing key: %w", err)
			}
			a.log.Info().Str("kid", ref.ID()).Str("type", keyType).Str("path", path).Msg("key generated")
			_, err = fmt.Fprintln(a.out, ref.ID())
			return err
		},
	}
	cmd.Flags().StringVar(&kid, "kid", keys.DefaultKid, "Key id")
	cmd.Flags().StringVarP(&keyType, "type", "t", string(keys.TypeEC), "Key type (ec, rsa, ed25519, symmetric)")
	cmd.Flags().IntVar(&bits, "bits", 0, "RSA modulus bits, EC curve size or symmetric key bytes")
	return cmd
}

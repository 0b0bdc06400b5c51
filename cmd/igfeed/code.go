package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"igfeed/pkg/auth"
	"igfeed/pkg/instagram"
	"igfeed/pkg/ui"
)

func (c *cli) codeCmd() *cobra.Command {
	codeCmd := &cobra.Command{
		Use:   "code",
		Short: "Hand a security code to a waiting login",
		Long: `A login stopped at a security checkpoint polls for the code Instagram sent.
These commands put the code where the waiting login looks for it.`,
	}

	var useKeyring bool
	setCmd := &cobra.Command{
		Use:     "set <username> <code>",
		Short:   "Provide the verification code for a login in progress",
		Example: `  igfeed code set myusername 123456`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := instagram.CodeIdentity(args[0])
			code := args[1]
			if !auth.IsValidCode(code) {
				return fmt.Errorf("invalid code %q: expected 6 digits", code)
			}

			if useKeyring {
				if err := auth.PutKeyringCode(identity, code); err != nil {
					return err
				}
			} else if err := c.codeStore().Put(identity, code); err != nil {
				return err
			}

			c.log.InfoWithFields("verification code stored", map[string]interface{}{
				"identity": identity,
				"keyring":  useKeyring,
			})
			ui.PrintSuccess(fmt.Sprintf("✓ Code for %s stored", identity))
			return nil
		},
	}
	setCmd.Flags().BoolVar(&useKeyring, "keyring", false, "store the code in the system keychain")

	clearCmd := &cobra.Command{
		Use:   "clear <username>",
		Short: "Discard a code that has not been used",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := instagram.CodeIdentity(args[0])
			if err := c.codeStore().Clear(identity); err != nil {
				return err
			}
			ui.PrintSuccess(fmt.Sprintf("✓ Code for %s cleared", identity))
			return nil
		},
	}

	codeCmd.AddCommand(setCmd, clearCmd)
	return codeCmd
}

func (c *cli) codeStore() *auth.CacheCodeStore {
	return auth.NewCacheCodeStore(c.fs, c.cfg.Challenge.CodeStore, c.cfg.Challenge.CodeLifetime)
}

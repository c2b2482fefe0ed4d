package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/usecase-cli/internal/llm"
)

var (
	keysProvider string
	keysSecret   string
	keysID       string
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage analysis provider credentials",
}

var keysAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a credential to the rotation pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if keysProvider != llm.ProviderAnthropic && keysProvider != llm.ProviderGemini {
			return eris.Errorf("unknown provider %q", keysProvider)
		}
		if keysSecret == "" {
			return eris.New("--secret is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		cred, err := st.AddCredential(ctx, keysProvider, keysSecret)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "added credential %s (%s)\n", cred.ID, cred.Provider)
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List credentials for a provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		creds, err := st.ListCredentials(ctx, keysProvider)
		if err != nil {
			return err
		}
		for _, c := range creds {
			state := "active"
			if !c.Active {
				state = "inactive"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s  %s\n", c.ID, c.Provider, c.Redacted(), state)
		}
		return nil
	},
}

var keysDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate a credential",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if keysID == "" {
			return eris.New("--id is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.DeactivateCredential(ctx, keysID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deactivated credential %s\n", keysID)
		return nil
	},
}

func init() {
	keysCmd.PersistentFlags().StringVar(&keysProvider, "provider", llm.ProviderGemini, "provider: gemini or anthropic")
	keysAddCmd.Flags().StringVar(&keysSecret, "secret", "", "API key value")
	keysDeactivateCmd.Flags().StringVar(&keysID, "id", "", "credential id")

	keysCmd.AddCommand(keysAddCmd, keysListCmd, keysDeactivateCmd)
	rootCmd.AddCommand(keysCmd)
}

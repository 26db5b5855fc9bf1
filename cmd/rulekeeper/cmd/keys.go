package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/rulekeeper/internal/core/auth"
	"github.com/solatis/rulekeeper/internal/core/config"
	"github.com/solatis/rulekeeper/internal/core/db"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API key for a client",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := cmd.Flags().GetString("client")
		secretID, _ := cmd.Flags().GetString("secret-id")

		secrets, err := config.HMACSecrets()
		if err != nil {
			return fmt.Errorf("failed to load HMAC secrets: %w", err)
		}
		if len(secrets) == 0 {
			return fmt.Errorf("no HMAC secrets configured (set RK_HMAC_SECRET environment variable)")
		}
		if secretID == "" {
			// Newest secret: UUIDv7 IDs sort by creation time
			ids := make([]string, 0, len(secrets))
			for id := range secrets {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			secretID = ids[len(ids)-1]
		}

		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()
		queries, err := db.LoadQueries(database)
		if err != nil {
			return fmt.Errorf("failed to load queries: %w", err)
		}

		key, rec, err := auth.NewAuthenticator(secrets, db.NewKeyStore(queries)).Issue(cmd.Context(), client, secretID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "api_key_id: %s\nclient: %s\nkey: %s\n", rec.ID, rec.ClientName, key)
		fmt.Fprintln(cmd.ErrOrStderr(), "store this key now, it cannot be shown again")
		return nil
	},
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()
		queries, err := db.LoadQueries(database)
		if err != nil {
			return fmt.Errorf("failed to load queries: %w", err)
		}

		keys, err := db.NewKeyStore(queries).List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCLIENT\tCREATED\tLAST USED\tREVOKED")
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.ClientName,
				k.CreatedAt.UTC().Format(time.RFC3339), nullTime(k.LastUsedAt.Valid, k.LastUsedAt.Time), nullTime(k.RevokedAt.Valid, k.RevokedAt.Time))
		}
		return w.Flush()
	},
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke API_KEY_ID",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer database.Close()
		queries, err := db.LoadQueries(database)
		if err != nil {
			return fmt.Errorf("failed to load queries: %w", err)
		}
		if err := db.NewKeyStore(queries).Revoke(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("revoke %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
		return nil
	},
}

func nullTime(valid bool, t time.Time) string {
	if !valid {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysListCmd, keysRevokeCmd)
	keysCreateCmd.Flags().String("client", "", "client name the key is issued to")
	keysCreateCmd.Flags().String("secret-id", "", "HMAC secret to bind the key to (default: newest)")
	keysCreateCmd.MarkFlagRequired("client")
}

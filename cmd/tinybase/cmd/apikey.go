// Package cmd 提供 tinybase 命令行工具的所有子命令实现。
// 本文件实现 apikey 命令，用于签发 API 密钥。
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	apikeyRole    string
	apikeyUser    string
	apikeyExpires int
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
	Long:  `Issue API keys for accessing the gateway. Requires admin credentials.`,
}

var apikeyCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an API key",
	Long: `Create a new API key and print it.

The key is shown exactly once; the gateway stores only its hash.

Examples:
  # Key for the current admin user
  tinybase apikey create ci-deploy

  # Key bound to another user, expiring in 90 days
  tinybase apikey create reporting --user u-42 --expires-days 90`,
	Args: cobra.ExactArgs(1),
	RunE: runAPIKeyCreate,
}

func init() {
	apikeyCreateCmd.Flags().StringVar(&apikeyRole, "role", "user", "Role granted to the key (user/admin)")
	apikeyCreateCmd.Flags().StringVar(&apikeyUser, "user", "", "User the key acts as (defaults to the caller)")
	apikeyCreateCmd.Flags().IntVar(&apikeyExpires, "expires-days", 0, "Days until the key expires (0 = never)")

	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyCreateCmd)
}

func runAPIKeyCreate(cmd *cobra.Command, args []string) error {
	client := NewClient()
	created, err := client.CreateAPIKey(&APIKeyRequest{
		Name:          args[0],
		UserID:        apikeyUser,
		Role:          apikeyRole,
		ExpiresInDays: apikeyExpires,
	})
	if err != nil {
		return err
	}

	cmd.Printf("✅ API Key '%s' created (id %s, role %s).\n", created.Name, created.ID, created.Role)
	cmd.Printf("Key: %s\n", created.Key)
	if created.ExpiresAt != nil {
		cmd.Printf("Expires: %s\n", created.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
	cmd.Println("⚠️  Save this key! It will only be shown once.")
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/scambus/scambus-go/client"
	"github.com/scambus/scambus-go/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	apiURL     string
	keyID      string
	keySecret  string
	apiToken   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "scambus",
		Short: "Consume scam-report streams",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.scambus/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "url", "", "API base URL")
	rootCmd.PersistentFlags().StringVar(&keyID, "key-id", "", "API key id")
	rootCmd.PersistentFlags().StringVar(&keySecret, "key-secret", "", "API key secret")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "bearer token")

	rootCmd.AddCommand(consumeCmd())
	rootCmd.AddCommand(tailCmd())
	rootCmd.AddCommand(infoCmd())
	rootCmd.AddCommand(recoverCmd())
	rootCmd.AddCommand(backfillCmd())
	rootCmd.AddCommand(recoveryStatusCmd())
	rootCmd.AddCommand(filterCmd())
	rootCmd.AddCommand(notificationsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newClient() (*client.Client, error) {
	fileConf, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	conf := client.Config{
		APIURL:       config.ResolveAPIURL(apiURL, fileConf),
		APIKeyID:     config.ResolveCredential(keyID, "SCAMBUS_API_KEY_ID", fileConf.APIKeyID),
		APIKeySecret: config.ResolveCredential(keySecret, "SCAMBUS_API_KEY_SECRET", fileConf.APIKeySecret),
		APIToken:     config.ResolveCredential(apiToken, "SCAMBUS_API_TOKEN", fileConf.APIToken),
	}
	return client.New(conf)
}

func newWSClient() (*client.WSClient, error) {
	fileConf, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	conf := client.WSConfig{
		Config: client.Config{
			APIURL:       config.ResolveAPIURL(apiURL, fileConf),
			APIKeyID:     config.ResolveCredential(keyID, "SCAMBUS_API_KEY_ID", fileConf.APIKeyID),
			APIKeySecret: config.ResolveCredential(keySecret, "SCAMBUS_API_KEY_SECRET", fileConf.APIKeySecret),
			APIToken:     config.ResolveCredential(apiToken, "SCAMBUS_API_TOKEN", fileConf.APIToken),
		},
	}
	return client.NewWSClient(conf)
}

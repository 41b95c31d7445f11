package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/bidbot/internal/config"
	"github.com/eliteGoblin/bidbot/internal/infra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	RunE:  runConfigInit,
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage secrets kept in the encrypted store",
	Long: `Secrets are kept in an encrypted SQLCipher database under the data directory
and take precedence over the plain values in the config file.

Known secrets: agent_password, telegram_bot_token`,
}

var secretSetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Store a secret read from stdin",
	Args:  cobra.ExactArgs(1),
	RunE:  runSecretSet,
}

var secretListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored secret names",
	RunE:  runSecretList,
}

var forceInit bool

var knownSecrets = []string{infra.SecretAgentPassword, infra.SecretTelegramToken}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	secretCmd.AddCommand(secretSetCmd)
	secretCmd.AddCommand(secretListCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := cfg.Masked().Marshal()
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}
	if err := config.Save(config.Default(), configPath); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration to %s\n", configPath)
	fmt.Println("Store the agent password with: bidbot secret set agent_password")
	return nil
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !isKnownSecret(key) {
		return fmt.Errorf("unknown secret %q (known: %s)", key, strings.Join(knownSecrets, ", "))
	}

	value, err := readSecret(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openSecrets(infra.PathsFor(cfg.DataDir))
	if err != nil {
		return fmt.Errorf("failed to open encrypted store: %w", err)
	}
	defer store.Close()

	if err := store.SetSecret(key, value); err != nil {
		return fmt.Errorf("failed to store secret: %w", err)
	}
	fmt.Printf("Stored %s in %s\n", key, store.Path())
	return nil
}

func runSecretList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openSecrets(infra.PathsFor(cfg.DataDir))
	if err != nil {
		return fmt.Errorf("failed to open encrypted store: %w", err)
	}
	defer store.Close()

	keys, err := store.SecretKeys()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("No secrets stored")
		return nil
	}
	for _, k := range keys {
		fmt.Printf("  - %s\n", k)
	}
	return nil
}

// readSecret reads the first line of stdin.
func readSecret(cmd *cobra.Command) (string, error) {
	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		fmt.Fprint(cmd.ErrOrStderr(), "Value: ")
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read secret from stdin: %w", err)
	}
	value := strings.TrimRight(line, "\r\n")
	if value == "" {
		return "", errors.New("secret value is empty")
	}
	return value, nil
}

func isKnownSecret(key string) bool {
	for _, k := range knownSecrets {
		if k == key {
			return true
		}
	}
	return false
}

// arbiter is the operator CLI for the routing gateway: catalog
// inspection over the API, budget administration against Postgres, and
// a local dry run of the prompt classifier.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/amerfu/arbiter/cmd/arbiter/commands"
)

var version = "dev"

var (
	dbURL      string
	apiURL     string
	apiToken   string
	outputJSON bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "arbiter",
		Short: "Manage the arbiter routing gateway",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database URL for direct access (default $ARBITER_DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "gateway base URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "api-key", "", "bearer token for the gateway API")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output JSON instead of tables")

	ctx := context.Background()
	rootCmd.AddCommand(commands.NewModelsCommand(ctx))
	rootCmd.AddCommand(commands.NewBudgetCommand(ctx))
	rootCmd.AddCommand(commands.NewClassifyCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func initConfig() error {
	if dbURL == "" {
		dbURL = os.Getenv("ARBITER_DATABASE_URL")
	}
	if dbURL != "" {
		db, err := gorm.Open(postgres.Open(dbURL), &gorm.Config{})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		commands.SetDB(db)
	}

	commands.SetAPIConfig(apiURL, apiToken)
	commands.SetOutputJSON(outputJSON)
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

// Package commands implements the arbiter CLI subcommands. Commands
// reach the gateway two ways: budget commands go straight at Postgres,
// catalog commands call the gateway's API.
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"gorm.io/gorm"
)

var (
	db         *gorm.DB
	apiURL     string
	apiToken   string
	outputJSON bool
)

// SetDB installs the direct database connection.
func SetDB(d *gorm.DB) { db = d }

// SetAPIConfig installs the gateway endpoint and bearer token.
func SetAPIConfig(url, token string) {
	apiURL = url
	apiToken = token
}

// SetOutputJSON switches output from tables to JSON.
func SetOutputJSON(enabled bool) { outputJSON = enabled }

func requireDB() (*gorm.DB, error) {
	if db == nil {
		return nil, fmt.Errorf("this command needs direct database access: pass --db-url or set ARBITER_DATABASE_URL")
	}
	return db, nil
}

func requireAPI() (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("this command needs the gateway API: pass --api-url")
	}
	return apiURL, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

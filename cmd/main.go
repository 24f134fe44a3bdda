/*
Copyright 2025 Shilingi Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shilingihq/shilingi"
	"github.com/shilingihq/shilingi/config"
	"github.com/shilingihq/shilingi/database"
	"github.com/shilingihq/shilingi/internal/notification"
)

// CLI wraps the root cobra command.
type CLI struct {
	cmd *cobra.Command
}

// instance holds the initialized service and its configuration for
// subcommands.
type instance struct {
	shilingi *shilingi.Shilingi
	cnf      *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and wires the service before any
// subcommand executes.
func preRun(app *instance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("shilingi.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newShilingi, err := setupShilingi(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.shilingi = newShilingi
		app.cnf = cnf

		return nil
	}
}

func setupShilingi(cfg *config.Configuration) (*shilingi.Shilingi, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newShilingi, err := shilingi.NewShilingi(db)
	if err != nil {
		return nil, fmt.Errorf("error creating shilingi: %v", err)
	}
	return newShilingi, nil
}

// NewCLI builds the command tree.
func NewCLI() *CLI {
	var configFile string
	b := &instance{}

	var rootCmd = &cobra.Command{
		Use:   "shilingi",
		Short: "Bank statement reconciliation for SMB accounting",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./shilingi.json", "Configuration file for shilingi")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(migrateCommands(b))
	rootCmd.AddCommand(configCommands())

	return &CLI{cmd: rootCmd}
}

func (w CLI) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}

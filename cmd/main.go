/*
Copyright 2025 TutorWise Authors.

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
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tutorwise/tutorsync"
	"github.com/tutorwise/tutorsync/config"
)

// tutorsyncInstance holds the runtime sync core and its configuration for
// the CLI commands.
type tutorsyncInstance struct {
	sync *tutorsync.TutorSync
	cnf  *config.Configuration
}

// recoverPanic logs any panic during command execution and exits non-zero.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the sync core before any
// command runs.
func preRun(app *tutorsyncInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("tutorsync.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		remote, err := tutorsync.NewHTTPRemote()
		if err != nil {
			return err
		}
		core, err := tutorsync.New(remote)
		if err != nil {
			return err
		}

		app.sync = core
		app.cnf = cnf
		return nil
	}
}

func main() {
	defer recoverPanic()

	app := &tutorsyncInstance{}
	rootCmd := &cobra.Command{
		Use:               "tutorsync",
		Short:             "tutorsync runs background workers for the TutorWise sync core",
		PersistentPreRunE: preRun(app),
	}
	rootCmd.AddCommand(workerCommands(app))

	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

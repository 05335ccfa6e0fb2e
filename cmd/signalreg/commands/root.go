// signalreg - registration finalization for Signal-compatible clients.
// Copyright (C) 2024 signalreg authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"go.mau.fi/signalreg/pkg/signalreg"
	"go.mau.fi/signalreg/pkg/signalreg/jobs"
	"go.mau.fi/signalreg/pkg/signalreg/keyvalue"
	"go.mau.fi/signalreg/pkg/signalreg/store"
	"go.mau.fi/signalreg/pkg/signalreg/web"
)

var (
	home string
	log  zerolog.Logger

	kvStore   *keyvalue.Store
	container *store.Container
	deps      *signalreg.Deps
)

func Execute() error {
	root := &cobra.Command{
		Use:           "signalreg",
		Short:         "Inspect and manage local Signal registration state",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Env overrides from .env are best-effort; the file is optional.
			_ = godotenv.Load()

			log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			if lvl, err := zerolog.ParseLevel(getenv("SIGNALREG_LOG_LEVEL", "info")); err == nil {
				log = log.Level(lvl)
			}

			if home == "" {
				home = os.Getenv("SIGNALREG_HOME")
			}
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".signalreg")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			var err error
			kvStore, err = keyvalue.Open(getenv("SIGNALREG_KV", filepath.Join(home, "signalreg.kv")))
			if err != nil {
				return err
			}

			dialect := getenv("SIGNALREG_DB_DIALECT", "sqlite3")
			address := getenv("SIGNALREG_DB", "file:"+filepath.Join(home, "signalreg.db")+"?_foreign_keys=on")
			container, err = store.New(dialect, address)
			if err != nil {
				return err
			}

			account := keyvalue.NewAccountStore(kvStore)
			network := web.NewNetworkAccess()
			deps = &signalreg.Deps{
				Account:       account,
				Flags:         keyvalue.NewRegistrationFlags(kvStore),
				Recipients:    container,
				Identities:    container,
				ACISessions:   container.ACIStore(),
				PNISessions:   container.PNIStore(),
				ACISenderKeys: container.ACIStore(),
				PNISenderKeys: container.PNIStore(),
				ACIPreKeys:    container.ACIStore(),
				PNIPreKeys:    container.PNIStore(),
				Scheduler:     jobs.NewScheduler(jobs.NewMemoryManager()),
				SVR:           signalreg.NoopSVR{},
				Managers: signalreg.WebManagerFactory{Factory: &web.Factory{
					Network: network,
					Agent:   "signalreg-cli",
					Log:     log.With().Str("component", "web").Logger(),
				}},
				Notifier:    signalreg.NoopNotifier{},
				Connections: signalreg.NoopConnections{},
				Log:         log,
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if container != nil {
				if err := container.Close(); err != nil {
					return err
				}
			}
			if kvStore != nil {
				return kvStore.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "data dir (default ~/.signalreg)")

	root.AddCommand(statusCmd(), firstLaunchCmd(), generateKeysCmd())
	return root.ExecuteContext(context.Background())
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

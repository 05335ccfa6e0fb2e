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
	"fmt"

	"github.com/spf13/cobra"
)

func firstLaunchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "first-launch",
		Short: "Reset the registration flags to their fresh-install state",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Flags.OnFirstEverAppLaunch(); err != nil {
				return err
			}
			fmt.Println("Registration flags reset")
			return nil
		},
	}
}

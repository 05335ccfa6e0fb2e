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

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the local registration state",
		RunE: func(cmd *cobra.Command, args []string) error {
			account := deps.Account
			flags := deps.Flags

			fmt.Printf("registered:          %t\n", account.IsRegistered())
			fmt.Printf("aci:                 %s\n", account.ACI())
			fmt.Printf("pni:                 %s\n", account.PNI())
			fmt.Printf("e164:                %s\n", account.E164())
			fmt.Printf("device id:           %d\n", account.DeviceID())
			if name := account.DeviceName(); name != "" {
				fmt.Printf("device name:         %s\n", name)
			}
			fmt.Printf("multi-device:        %t\n", account.IsMultiDevice())
			fmt.Printf("storage capable:     %t\n", account.IsStorageCapable())
			fmt.Printf("registration id:     %d\n", account.RegistrationID())
			fmt.Printf("pni registration id: %d\n", account.PNIRegistrationID())
			fmt.Println()
			fmt.Printf("registration complete:  %t\n", flags.IsRegistrationComplete())
			fmt.Printf("pin required:           %t\n", flags.PinWasRequiredAtRegistration())
			fmt.Printf("profile uploaded:       %t\n", flags.HasUploadedProfile())
			fmt.Printf("need profile download:  %t\n", flags.NeedDownloadProfile())
			fmt.Printf("need avatar download:   %t\n", flags.NeedDownloadProfileAvatar())

			ctx := cmd.Context()
			aciSessions, err := deps.ACISessions.ActiveSessionCount(ctx)
			if err != nil {
				return err
			}
			aciPreKeys, err := deps.ACIPreKeys.UploadedOneTimePreKeyCount(ctx)
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Printf("active aci sessions:      %d\n", aciSessions)
			fmt.Printf("uploaded one-time keys:   %d\n", aciPreKeys)
			return nil
		},
	}
}

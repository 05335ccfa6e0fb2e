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
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"go.mau.fi/signalreg/pkg/signalreg"
	"go.mau.fi/signalreg/pkg/signalreg/keyvalue"
	"go.mau.fi/signalreg/pkg/sigproto"
)

func generateKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate-keys",
		Short: "Generate fresh identity keys and pre-key collections for both identities",
		Long: `Generates new ACI and PNI identity key pairs, stores them in the account
store, and builds a signed pre-key plus last-resort Kyber pre-key for each.
This is what the verify flow would run before submitting a registration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			account := deps.Account

			for _, identity := range []struct {
				name     string
				setter   func(*sigproto.IdentityKeyPair) error
				metadata *keyvalue.PreKeyMetadataStore
			}{
				{"aci", account.SetACIIdentityKeyPair, account.ACIPreKeys()},
				{"pni", account.SetPNIIdentityKeyPair, account.PNIPreKeys()},
			} {
				keyPair, err := sigproto.GenerateIdentityKeyPair()
				if err != nil {
					return err
				}
				if err = identity.setter(keyPair); err != nil {
					return err
				}
				collection, err := signalreg.GenerateSignedAndLastResortPreKeys(keyPair, identity.metadata)
				if err != nil {
					return err
				}
				fmt.Printf("%s identity:       %s\n", identity.name, base64.StdEncoding.EncodeToString(collection.IdentityKey))
				fmt.Printf("%s signed pre-key: %d\n", identity.name, collection.SignedPreKey.ID)
				fmt.Printf("%s kyber pre-key:  %d\n", identity.name, collection.LastResortKyberPreKey.ID)
			}
			return nil
		},
	}
}

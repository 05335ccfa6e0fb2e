package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"go.mau.fi/signalreg/pkg/signalreg/types"
	"go.mau.fi/signalreg/pkg/sigproto"
)

// Factory constructs account managers bound to a configuration selected for
// the number's country prefix.
type Factory struct {
	Network            *NetworkAccess
	Installer          TLSProviderInstaller
	Agent              string
	AutomaticRetry     bool
	GroupSizeHardLimit int

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client

	Log zerolog.Logger
}

func (f *Factory) client() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return newHTTPClient()
}

func (f *Factory) newManager(config ServiceConfiguration, creds *CredentialsProvider) *AccountManager {
	return &AccountManager{
		config:             config,
		creds:              creds,
		agent:              f.Agent,
		automaticRetry:     f.AutomaticRetry,
		groupSizeHardLimit: f.GroupSizeHardLimit,
		client:             f.client(),
		log:                f.Log.With().Str("component", "account_manager").Logger(),
	}
}

// CreateAuthenticated builds a manager for an account with known service ids.
func (f *Factory) CreateAuthenticated(aci, pni types.ServiceID, e164 string, deviceID int, password string) *AccountManager {
	if f.Network.IsCensored(e164) {
		installTLSProviderAsync(f.Installer, f.Log)
	}
	return f.newManager(f.Network.ConfigurationFor(e164), NewCredentialsProvider(aci, pni, e164, deviceID, password))
}

// CreateUnauthenticated builds a manager for use during registration, before
// an ACI has been assigned.
func (f *Factory) CreateUnauthenticated(e164 string, deviceID int, password string) *AccountManager {
	if f.Network.IsCensored(e164) {
		installTLSProviderAsync(f.Installer, f.Log)
	}
	return f.newManager(f.Network.ConfigurationFor(e164), NewCredentialsProvider(types.ServiceID{}, types.ServiceID{}, e164, deviceID, password))
}

// CreateForDeviceLink builds a manager for the link flow. The number is not
// known yet, so a censored configuration cannot be selected; the default one
// is used unconditionally.
func (f *Factory) CreateForDeviceLink(password string) *AccountManager {
	return f.newManager(f.Network.Default, NewCredentialsProvider(types.ServiceID{}, types.ServiceID{}, "", types.DefaultDeviceID, password))
}

// PreKeyUpload is one identity's pre-key upload payload.
type PreKeyUpload struct {
	ServiceIDType    types.ServiceIDKind
	IdentityKey      []byte
	SignedPreKey     *sigproto.SignedPreKeyRecord
	OneTimeECPreKeys []*sigproto.PreKeyRecord
	OneTimePQPreKeys []*sigproto.KyberPreKeyRecord
	LastResortKyber  *sigproto.KyberPreKeyRecord
}

// AccountManager performs authenticated account operations against the
// service.
type AccountManager struct {
	config             ServiceConfiguration
	creds              *CredentialsProvider
	agent              string
	automaticRetry     bool
	groupSizeHardLimit int
	client             *http.Client
	log                zerolog.Logger
}

func (am *AccountManager) Credentials() *CredentialsProvider {
	return am.creds
}

func (am *AccountManager) Configuration() ServiceConfiguration {
	return am.config
}

type preKeyJSON struct {
	KeyID     uint32 `json:"keyId"`
	PublicKey string `json:"publicKey"`
	Signature string `json:"signature,omitempty"`
}

type setPreKeysRequest struct {
	IdentityKey        string       `json:"identityKey"`
	PreKeys            []preKeyJSON `json:"preKeys,omitempty"`
	SignedPreKey       *preKeyJSON  `json:"signedPreKey,omitempty"`
	PQPreKeys          []preKeyJSON `json:"pqPreKeys,omitempty"`
	PQLastResortPreKey *preKeyJSON  `json:"pqLastResortPreKey,omitempty"`
}

func signedPreKeyToJSON(record *sigproto.SignedPreKeyRecord) *preKeyJSON {
	return &preKeyJSON{
		KeyID:     record.ID,
		PublicKey: base64.StdEncoding.EncodeToString(record.KeyPair.PublicKey[:]),
		Signature: base64.StdEncoding.EncodeToString(record.Signature),
	}
}

func kyberPreKeyToJSON(record *sigproto.KyberPreKeyRecord) *preKeyJSON {
	return &preKeyJSON{
		KeyID:     record.ID,
		PublicKey: base64.StdEncoding.EncodeToString(record.PublicKey),
		Signature: base64.StdEncoding.EncodeToString(record.Signature),
	}
}

// SetPreKeys uploads the given pre-keys for one identity. The records must
// already be stored locally; the server only ever sees public halves.
func (am *AccountManager) SetPreKeys(ctx context.Context, upload *PreKeyUpload) error {
	body := setPreKeysRequest{
		IdentityKey:  base64.StdEncoding.EncodeToString(upload.IdentityKey),
		SignedPreKey: signedPreKeyToJSON(upload.SignedPreKey),
	}
	for _, preKey := range upload.OneTimeECPreKeys {
		body.PreKeys = append(body.PreKeys, preKeyJSON{
			KeyID:     preKey.ID,
			PublicKey: base64.StdEncoding.EncodeToString(preKey.KeyPair.PublicKey[:]),
		})
	}
	for _, preKey := range upload.OneTimePQPreKeys {
		body.PQPreKeys = append(body.PQPreKeys, *kyberPreKeyToJSON(preKey))
	}
	if upload.LastResortKyber != nil {
		body.PQLastResortPreKey = kyberPreKeyToJSON(upload.LastResortKyber)
	}

	payload, err := json.Marshal(&body)
	if err != nil {
		return fmt.Errorf("failed to marshal pre-key upload: %w", err)
	}

	path := "/v2/keys?identity=" + string(upload.ServiceIDType)
	opt := &HTTPReqOpt{
		Body:     payload,
		Username: am.creds.BasicAuthUsername(),
		Password: am.creds.Password(),
		Agent:    am.agent,
	}
	resp, err := SendHTTPRequest(ctx, am.client, http.MethodPut, am.config.BaseURL, path, opt)
	if err != nil && am.automaticRetry && isTransient(err) {
		am.log.Warn().Err(err).Msg("Retrying pre-key upload after transient error")
		resp, err = SendHTTPRequest(ctx, am.client, http.MethodPut, am.config.BaseURL, path, opt)
	}
	if err != nil {
		return fmt.Errorf("failed to upload pre-keys: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pre-key upload failed: %s", resp.Status)
	}
	am.log.Debug().
		Str("identity", string(upload.ServiceIDType)).
		Int("one_time_count", len(upload.OneTimeECPreKeys)).
		Msg("Uploaded pre-keys")
	return nil
}

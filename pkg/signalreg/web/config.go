// Package web provides the service-client layer used during registration:
// service configuration selection (including censorship circumvention),
// credentials, and the account manager that uploads pre-keys.
package web

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// ServiceConfiguration binds the endpoints a service client talks to.
type ServiceConfiguration struct {
	BaseURL                string
	StorageBaseURL         string
	CensorshipCircumvented bool
}

// DefaultConfiguration is the direct, non-censored endpoint set.
var DefaultConfiguration = ServiceConfiguration{
	BaseURL:        "https://chat.signal.org",
	StorageBaseURL: "https://storage.signal.org",
}

// CensoredConfiguration routes through fronted reflectors for countries that
// block the direct endpoints.
var CensoredConfiguration = ServiceConfiguration{
	BaseURL:                "https://chat-fronted.signal.org.global.prod.fastly.net",
	StorageBaseURL:         "https://storage-fronted.signal.org.global.prod.fastly.net",
	CensorshipCircumvented: true,
}

// censoredPrefixes are the national E.164 prefixes known to block the direct
// endpoints.
var censoredPrefixes = []string{
	"+20",  // Egypt
	"+53",  // Cuba
	"+98",  // Iran
	"+968", // Oman
	"+971", // UAE
	"+974", // Qatar
}

// TLSProviderInstaller updates the platform TLS provider before talking to a
// censored endpoint. Installation is best-effort.
type TLSProviderInstaller interface {
	InstallIfNeeded(ctx context.Context) error
}

// NetworkAccess selects a service configuration for a phone number.
type NetworkAccess struct {
	Default  ServiceConfiguration
	Censored ServiceConfiguration
}

func NewNetworkAccess() *NetworkAccess {
	return &NetworkAccess{
		Default:  DefaultConfiguration,
		Censored: CensoredConfiguration,
	}
}

// IsCensored reports whether the number's national prefix requires the
// censorship-circumvention configuration.
func (na *NetworkAccess) IsCensored(e164 string) bool {
	for _, prefix := range censoredPrefixes {
		if strings.HasPrefix(e164, prefix) {
			return true
		}
	}
	return false
}

// ConfigurationFor returns the configuration for the given number. An empty
// number (device link, number not yet known) always selects the default
// configuration; censorship cannot be detected without a country code.
func (na *NetworkAccess) ConfigurationFor(e164 string) ServiceConfiguration {
	if e164 != "" && na.IsCensored(e164) {
		return na.Censored
	}
	return na.Default
}

// installTLSProviderAsync kicks off a best-effort TLS provider install.
// Failure is logged and ignored; it never fails registration.
func installTLSProviderAsync(installer TLSProviderInstaller, log zerolog.Logger) {
	if installer == nil {
		return
	}
	go func() {
		if err := installer.InstallIfNeeded(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to install updated TLS provider")
		}
	}()
}

package keyvalue

import (
	"sync"
)

// Stable key-value keys, preserved across upgrades.
const (
	keyRegistrationComplete      = "registration.complete"
	keyPinRequired               = "registration.pin_required"
	keyHasUploadedProfile        = "registration.has_uploaded_profile"
	keyNeedDownloadProfile       = "registration.need_download_profile"
	keyNeedDownloadProfileAvatar = "registration.need_download_profile_avatar"
)

// RegistrationFlags holds the five booleans guarding one-shot registration
// work. A single lock covers all of them so that OnFirstEverAppLaunch commits
// atomically with respect to readers.
type RegistrationFlags struct {
	store *Store
	lock  sync.Mutex
}

func NewRegistrationFlags(store *Store) *RegistrationFlags {
	return &RegistrationFlags{store: store}
}

// OnFirstEverAppLaunch resets all five flags to their fresh-install values in
// one commit.
func (r *RegistrationFlags) OnFirstEverAppLaunch() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.store.BeginWrite().
		PutBool(keyHasUploadedProfile, false).
		PutBool(keyNeedDownloadProfile, false).
		PutBool(keyNeedDownloadProfileAvatar, false).
		PutBool(keyRegistrationComplete, false).
		PutBool(keyPinRequired, true).
		Commit()
}

// ClearRegistrationComplete resets everything, not just the complete flag.
// This mirrors upstream behavior exactly; see DESIGN.md for the open
// question about its interaction with the missing-key default.
func (r *RegistrationFlags) ClearRegistrationComplete() error {
	return r.OnFirstEverAppLaunch()
}

func (r *RegistrationFlags) SetRegistrationComplete() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.store.BeginWrite().
		PutBool(keyRegistrationComplete, true).
		Commit()
}

// IsRegistrationComplete defaults to true on a missing key so that upgrading
// installs do not see the registration reminder.
func (r *RegistrationFlags) IsRegistrationComplete() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.store.GetBool(keyRegistrationComplete, true)
}

func (r *RegistrationFlags) PinWasRequiredAtRegistration() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.store.GetBool(keyPinRequired, false)
}

func (r *RegistrationFlags) HasUploadedProfile() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.store.GetBool(keyHasUploadedProfile, true)
}

func (r *RegistrationFlags) MarkHasUploadedProfile() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.store.PutBool(keyHasUploadedProfile, true)
}

func (r *RegistrationFlags) ClearHasUploadedProfile() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.store.PutBool(keyHasUploadedProfile, false)
}

// MarkNeedDownloadProfileAndAvatar is set when linking: the profile lives on
// the primary and must be fetched.
func (r *RegistrationFlags) MarkNeedDownloadProfileAndAvatar() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.store.BeginWrite().
		PutBool(keyNeedDownloadProfile, true).
		PutBool(keyNeedDownloadProfileAvatar, true).
		Commit()
}

func (r *RegistrationFlags) NeedDownloadProfile() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.store.GetBool(keyNeedDownloadProfile, true)
}

func (r *RegistrationFlags) NeedDownloadProfileAvatar() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.store.GetBool(keyNeedDownloadProfileAvatar, true)
}

func (r *RegistrationFlags) NeedDownloadProfileOrAvatar() bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.store.GetBool(keyNeedDownloadProfile, true) ||
		r.store.GetBool(keyNeedDownloadProfileAvatar, true)
}

func (r *RegistrationFlags) ClearNeedDownloadProfile() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.store.PutBool(keyNeedDownloadProfile, false)
}

func (r *RegistrationFlags) ClearNeedDownloadProfileAvatar() error {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.store.PutBool(keyNeedDownloadProfileAvatar, false)
}

package signalreg

import (
	"context"
	"fmt"
	"time"

	"go.mau.fi/signalreg/pkg/signalreg/keyvalue"
	"go.mau.fi/signalreg/pkg/signalreg/store"
	"go.mau.fi/signalreg/pkg/signalreg/types"
	"go.mau.fi/signalreg/pkg/sigproto"
)

// oneTimePreKeyBatchSize is how many one-time EC pre-keys are generated per
// upload.
const oneTimePreKeyBatchSize = 100

// GenerateSignedAndLastResortPreKeys derives a fresh signed pre-key and
// last-resort Kyber pre-key for one identity, drawing ids from the metadata
// allocators. Nothing is persisted here; ids burned by discarded bundles are
// never reused.
func GenerateSignedAndLastResortPreKeys(identity *sigproto.IdentityKeyPair, metadata *keyvalue.PreKeyMetadataStore) (*types.PreKeyCollection, error) {
	signedID, err := metadata.NextSignedPreKeyID()
	if err != nil {
		return nil, err
	}
	signedPreKey, err := sigproto.GenerateSignedPreKey(signedID, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signed pre-key: %w", err)
	}

	kyberID, err := metadata.NextKyberPreKeyID()
	if err != nil {
		return nil, err
	}
	lastResort, err := sigproto.GenerateLastResortKyberPreKey(kyberID, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to generate last-resort kyber pre-key: %w", err)
	}

	return &types.PreKeyCollection{
		IdentityKey:           identity.PublicKey(),
		SignedPreKey:          signedPreKey,
		LastResortKyberPreKey: lastResort,
	}, nil
}

// storeSignedAndLastResortPreKeys persists one identity's collection and
// updates the metadata so the active ids point at locally stored private
// halves. This must complete before any upload references the ids.
func storeSignedAndLastResortPreKeys(ctx context.Context, preKeyStore store.PreKeyStore, metadata *keyvalue.PreKeyMetadataStore, collection *types.PreKeyCollection) error {
	if err := preKeyStore.SaveSignedPreKey(ctx, collection.SignedPreKey); err != nil {
		return err
	}
	if err := metadata.SetSignedPreKeyRegistered(true); err != nil {
		return err
	}
	if err := metadata.SetActiveSignedPreKeyID(collection.SignedPreKey.ID); err != nil {
		return err
	}
	if err := metadata.SetLastSignedPreKeyRotationTime(time.Now()); err != nil {
		return err
	}

	if err := preKeyStore.SaveKyberPreKey(ctx, collection.LastResortKyberPreKey); err != nil {
		return err
	}
	if err := metadata.SetLastResortKyberPreKeyID(collection.LastResortKyberPreKey.ID); err != nil {
		return err
	}
	return metadata.SetLastResortKyberPreKeyRotationTime(time.Now())
}

// GenerateAndStoreOneTimeECPreKeys generates a batch of one-time EC pre-keys
// and persists them before returning, so the returned records are safe to
// upload.
func GenerateAndStoreOneTimeECPreKeys(ctx context.Context, preKeyStore store.PreKeyStore, metadata *keyvalue.PreKeyMetadataStore) ([]*sigproto.PreKeyRecord, error) {
	records := make([]*sigproto.PreKeyRecord, 0, oneTimePreKeyBatchSize)
	for i := 0; i < oneTimePreKeyBatchSize; i++ {
		id, err := metadata.NextOneTimePreKeyID()
		if err != nil {
			return nil, err
		}
		record, err := sigproto.GeneratePreKey(id)
		if err != nil {
			return nil, fmt.Errorf("failed to generate pre-key: %w", err)
		}
		if err = preKeyStore.SaveOneTimePreKey(ctx, record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

package store

import (
	"database/sql"
)

type upgradeFunc func(*sql.Tx, *Container) error

// Upgrades is the ordered list of schema migrations. Container.Upgrade runs
// the ones past the stored version.
var Upgrades = [...]upgradeFunc{upgradeV1}

func (c *Container) getVersion() (int, error) {
	_, err := c.db.Exec("CREATE TABLE IF NOT EXISTS signalreg_version (version INTEGER)")
	if err != nil {
		return -1, err
	}

	version := 0
	row := c.db.QueryRow("SELECT version FROM signalreg_version LIMIT 1")
	if row != nil {
		_ = row.Scan(&version)
	}
	return version, nil
}

func (c *Container) setVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("DELETE FROM signalreg_version")
	if err != nil {
		return err
	}
	_, err = tx.Exec("INSERT INTO signalreg_version (version) VALUES ($1)", version)
	return err
}

// Upgrade upgrades the database from the current to the latest version.
func (c *Container) Upgrade() error {
	version, err := c.getVersion()
	if err != nil {
		return err
	}

	for ; version < len(Upgrades); version++ {
		var tx *sql.Tx
		tx, err = c.db.Begin()
		if err != nil {
			return err
		}

		migrateFunc := Upgrades[version]
		err = migrateFunc(tx, c)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		if err = c.setVersion(tx, version+1); err != nil {
			return err
		}

		if err = tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

func upgradeV1(tx *sql.Tx, _ *Container) error {
	_, err := tx.Exec(`CREATE TABLE signalreg_recipients (
		id              INTEGER PRIMARY KEY,
		aci             TEXT,
		pni             TEXT,
		e164            TEXT,
		profile_key     bytea,
		profile_sharing BOOLEAN NOT NULL DEFAULT false,
		registered      BOOLEAN NOT NULL DEFAULT false
	)`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE TABLE signalreg_identities (
		service_id   TEXT    NOT NULL,
		recipient_id INTEGER NOT NULL,
		public_key   bytea   NOT NULL,
		trust_level  TEXT    NOT NULL,
		first_use    BOOLEAN NOT NULL,
		self         BOOLEAN NOT NULL,
		added_at     BIGINT  NOT NULL,

		PRIMARY KEY (service_id),
		FOREIGN KEY (recipient_id) REFERENCES signalreg_recipients(id) ON DELETE CASCADE ON UPDATE CASCADE
	)`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE TABLE signalreg_sessions (
		our_identity     TEXT    NOT NULL,
		their_service_id TEXT    NOT NULL,
		their_device_id  INTEGER NOT NULL,
		record           bytea   NOT NULL,
		archived         BOOLEAN NOT NULL DEFAULT false,

		PRIMARY KEY (our_identity, their_service_id, their_device_id)
	)`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE TABLE signalreg_sender_keys (
		our_identity     TEXT    NOT NULL,
		their_service_id TEXT    NOT NULL,
		their_device_id  INTEGER NOT NULL,
		distribution_id  TEXT    NOT NULL,
		record           bytea   NOT NULL,

		PRIMARY KEY (our_identity, their_service_id, their_device_id, distribution_id)
	)`)
	if err != nil {
		return err
	}
	_, err = tx.Exec(`CREATE TABLE signalreg_prekeys (
		our_identity TEXT    NOT NULL,
		kind         TEXT    NOT NULL,
		key_id       INTEGER NOT NULL,
		record       bytea   NOT NULL,
		uploaded     BOOLEAN NOT NULL,

		PRIMARY KEY (our_identity, kind, key_id)
	)`)
	return err
}

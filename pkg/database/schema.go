package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the database schema for the consent engine
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating database schema...")

	if err := db.createExtensions(ctx); err != nil {
		return fmt.Errorf("failed to create extensions: %w", err)
	}

	tables := []string{
		createConsentsTable,
		createCapabilityGrantsTable,
		createContentRecordsTable,
		createAuditEntriesTable,
		createEmergencyOverridesTable,
	}

	for _, table := range tables {
		if _, err := db.ExecContext(ctx, table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	indexes := []string{
		createConsentsIndexes,
		createCapabilityGrantsIndexes,
		createContentRecordsIndexes,
		createAuditEntriesIndexes,
		createEmergencyOverridesIndexes,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	db.logger.Info("Database schema created successfully")
	return nil
}

// createExtensions creates required PostgreSQL extensions
func (db *DB) createExtensions(ctx context.Context) error {
	extensions := []string{
		`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	}

	for _, ext := range extensions {
		if _, err := db.ExecContext(ctx, ext); err != nil {
			return fmt.Errorf("failed to create extension: %w", err)
		}
	}

	return nil
}

const createConsentsTable = `
CREATE TABLE IF NOT EXISTS consents (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
	subject_id VARCHAR(255) NOT NULL,
	accessor_id VARCHAR(255) NOT NULL,
	status VARCHAR(20) NOT NULL DEFAULT 'pending',
	scope JSONB NOT NULL DEFAULT '{}',
	request_message TEXT,
	response_message TEXT,
	grant_tx_id VARCHAR(255),
	grant_block BIGINT,
	grant_mirrored_at TIMESTAMP WITH TIME ZONE,
	revoke_tx_id VARCHAR(255),
	revoke_block BIGINT,
	revoke_mirrored_at TIMESTAMP WITH TIME ZONE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	CONSTRAINT consents_subject_accessor_key UNIQUE (subject_id, accessor_id),
	CONSTRAINT consents_status_check CHECK (status IN ('pending', 'granted', 'revoked'))
);`

const createConsentsIndexes = `
CREATE INDEX IF NOT EXISTS idx_consents_subject ON consents(subject_id);
CREATE INDEX IF NOT EXISTS idx_consents_accessor ON consents(accessor_id);
CREATE INDEX IF NOT EXISTS idx_consents_status ON consents(status);`

const createCapabilityGrantsTable = `
CREATE TABLE IF NOT EXISTS capability_grants (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
	resource_id UUID NOT NULL,
	wallet_address VARCHAR(42) NOT NULL,
	granted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
	expiration_days INTEGER NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	access_count BIGINT NOT NULL DEFAULT 0,
	last_accessed_at TIMESTAMP WITH TIME ZONE,
	CONSTRAINT capability_grants_resource_wallet_key UNIQUE (resource_id, wallet_address)
);`

const createCapabilityGrantsIndexes = `
CREATE INDEX IF NOT EXISTS idx_capability_grants_wallet ON capability_grants(wallet_address);
CREATE INDEX IF NOT EXISTS idx_capability_grants_resource ON capability_grants(resource_id);`

const createContentRecordsTable = `
CREATE TABLE IF NOT EXISTS content_records (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
	owner_id VARCHAR(255) NOT NULL,
	name VARCHAR(512) NOT NULL,
	media_type VARCHAR(255) NOT NULL,
	content_hash CHAR(64) NOT NULL,
	size BIGINT NOT NULL,
	storage_locator TEXT NOT NULL,
	ledger_resource_id VARCHAR(255),
	ledger_tx_id VARCHAR(255),
	ledger_block BIGINT,
	registered BOOLEAN NOT NULL DEFAULT FALSE,
	registered_at TIMESTAMP WITH TIME ZONE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);`

const createContentRecordsIndexes = `
CREATE INDEX IF NOT EXISTS idx_content_records_owner ON content_records(owner_id);
CREATE INDEX IF NOT EXISTS idx_content_records_hash ON content_records(content_hash);`

const createAuditEntriesTable = `
CREATE TABLE IF NOT EXISTS audit_entries (
	seq BIGSERIAL PRIMARY KEY,
	id UUID NOT NULL UNIQUE,
	actor_id VARCHAR(255) NOT NULL,
	target_id VARCHAR(255) NOT NULL,
	action VARCHAR(64) NOT NULL,
	resource_id VARCHAR(255),
	timestamp TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	details JSONB,
	mirrored BOOLEAN NOT NULL DEFAULT FALSE
);`

const createAuditEntriesIndexes = `
CREATE INDEX IF NOT EXISTS idx_audit_entries_actor ON audit_entries(actor_id);
CREATE INDEX IF NOT EXISTS idx_audit_entries_action ON audit_entries(action);
CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries(timestamp DESC);`

const createEmergencyOverridesTable = `
CREATE TABLE IF NOT EXISTS emergency_overrides (
	id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
	subject_id VARCHAR(255) NOT NULL,
	accessor_id VARCHAR(255) NOT NULL,
	reason TEXT NOT NULL,
	granted_by VARCHAR(255) NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	CONSTRAINT emergency_overrides_subject_accessor_key UNIQUE (subject_id, accessor_id)
);`

const createEmergencyOverridesIndexes = `
CREATE INDEX IF NOT EXISTS idx_emergency_overrides_accessor ON emergency_overrides(accessor_id);`

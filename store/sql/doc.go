// Package sqlstore persists authclient credentials in a SQL table through bun.
// Open builds a go-persistence-bun client with the schema applied, and
// NewCredentialStore serves core.CredentialStore on top of it.
package sqlstore

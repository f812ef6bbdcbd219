package access

import (
	"context"
	"fmt"

	"github.com/0x0wen/MediLock/pkg/database"
	"github.com/0x0wen/MediLock/pkg/logger"
	"github.com/0x0wen/MediLock/pkg/types"
)

// Archive mirrors committed access-log entries into Postgres so external
// indexers can query them without walking the entity store. The mirror is
// best-effort: the ledger's own append is the source of truth.
type Archive struct {
	db     *database.DB
	logger *logger.Logger
}

// NewArchive creates a new access-log archive
func NewArchive(db *database.DB, log *logger.Logger) *Archive {
	return &Archive{
		db:     db,
		logger: log,
	}
}

// EnsureSchema creates the archive table if it does not exist
func (a *Archive) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS access_log_entries (
			entry_key       TEXT PRIMARY KEY,
			record_id       TEXT NOT NULL,
			actor_principal TEXT NOT NULL,
			action          TEXT NOT NULL,
			nonce           TEXT NOT NULL,
			logged_at       TIMESTAMPTZ NOT NULL
		)`

	if _, err := a.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create archive schema: %w", err)
	}
	return nil
}

// Append mirrors one committed log entry. The entry key is the same
// deterministic composite key the entity store uses, so both sides stay
// addressable by the same identifier.
func (a *Archive) Append(ctx context.Context, entryKey string, entry *types.AccessLogEntry) error {
	query := `
		INSERT INTO access_log_entries (entry_key, record_id, actor_principal, action, nonce, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entry_key) DO NOTHING`

	_, err := a.db.ExecContext(ctx, query,
		entryKey,
		entry.RecordID,
		entry.ActorPrincipal,
		entry.Action,
		entry.Nonce,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert archive entry: %w", err)
	}
	return nil
}

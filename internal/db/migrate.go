package db

import (
	"fmt"

	"github.com/inkwell-app/inkwell/internal/models"
	"gorm.io/gorm"
)

type ddl struct {
	name string
	sql  string
}

// Migrate creates or updates every table, then applies the indexes for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	dialect := DialectName(conn)
	if dialect != DialectSQLite && dialect != DialectPostgres && dialect != "" {
		return fmt.Errorf("db: unsupported dialect: %s", dialect)
	}
	if errAutoMigrate := conn.AutoMigrate(migratedModels()...); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errBackfill := normalizeUserEmails(conn); errBackfill != nil {
		return errBackfill
	}
	return applyDDLs(conn, indexesFor(dialect))
}

// migratedModels lists every persisted model in dependency order.
func migratedModels() []any {
	return []any{
		&models.User{},
		&models.Session{},
		&models.Document{},
		&models.Knowledge{},
		&models.WebhookEvent{},
		&models.AIUsage{},
	}
}

func indexesFor(dialect string) []ddl {
	out := []ddl{
		{"idx_users_email_lower", `CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower ON users (LOWER(email))`},
		{"idx_documents_user_id_created_at", `CREATE INDEX IF NOT EXISTS idx_documents_user_id_created_at ON documents (user_id, created_at DESC)`},
		{"idx_knowledge_document_id_created_at", `CREATE INDEX IF NOT EXISTS idx_knowledge_document_id_created_at ON knowledge (document_id, created_at DESC)`},
		{"idx_sessions_user_id_expires_at", `CREATE INDEX IF NOT EXISTS idx_sessions_user_id_expires_at ON sessions (user_id, expires_at)`},
	}
	if dialect != DialectSQLite {
		// jsonb payloads only exist on postgres.
		out = append(out, ddl{"idx_webhook_events_payload_gin", `CREATE INDEX IF NOT EXISTS idx_webhook_events_payload_gin ON webhook_events USING GIN (payload)`})
	}
	return out
}

// normalizeUserEmails lower-cases stored emails so lookups stay case-insensitive.
func normalizeUserEmails(conn *gorm.DB) error {
	errUpdate := conn.Exec(`UPDATE users SET email = LOWER(TRIM(email)) WHERE email <> LOWER(TRIM(email))`).Error
	if errUpdate != nil {
		return fmt.Errorf("db: normalize user emails: %w", errUpdate)
	}
	return nil
}

func applyDDLs(conn *gorm.DB, ddls []ddl) error {
	for _, item := range ddls {
		if errExec := conn.Exec(item.sql).Error; errExec != nil {
			return fmt.Errorf("db: create %s: %w", item.name, errExec)
		}
	}
	return nil
}

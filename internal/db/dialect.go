package db

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Dialect names reported by the gorm dialectors this package opens.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// DialectName returns the connection's dialect, or "" for a nil connection.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether conn talks to SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContainsFold returns a WHERE clause and its bind value matching rows whose column contains term,
// ignoring case. Wildcards in term match literally.
func ContainsFold(conn *gorm.DB, column, term string) (string, string) {
	pattern := "%" + likeEscaper.Replace(strings.TrimSpace(term)) + "%"
	if IsSQLite(conn) {
		// SQLite has no ILIKE and no default escape character.
		return fmt.Sprintf("LOWER(%s) LIKE ? ESCAPE '\\'", column), strings.ToLower(pattern)
	}
	return fmt.Sprintf("%s ILIKE ?", column), pattern
}

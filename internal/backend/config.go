package backend

import (
	"fmt"
	"net/url"
	"strings"
)

const defaultMongoDatabase = "fintrack"

// ParseDatabaseURL maps DATABASE_URL to a backend configuration:
//
//	sqlite://./data/fintrack.db         -> SQLite file ./data/fintrack.db
//	sqlite:///var/lib/fintrack.db       -> SQLite file /var/lib/fintrack.db
//	mongodb://host:27017/ledger         -> MongoDB database "ledger"
//	mongodb+srv://user:pw@cluster/      -> MongoDB database "fintrack"
//	memory://                           -> in-process store
func ParseDatabaseURL(raw string) (Config, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			return Config{}, fmt.Errorf("sqlite database path is required")
		}
		return Config{Type: SQLiteBackend, SQLiteDBPath: path}, nil

	case strings.HasPrefix(raw, "mongodb://"), strings.HasPrefix(raw, "mongodb+srv://"):
		u, err := url.Parse(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid mongodb url: %w", err)
		}
		dbName := strings.Trim(u.Path, "/")
		if dbName == "" {
			dbName = defaultMongoDatabase
		}
		return Config{Type: MongoBackend, MongoURI: raw, MongoDatabase: dbName}, nil

	case strings.HasPrefix(raw, "memory://"):
		return Config{Type: MemoryBackend}, nil
	}
	return Config{}, fmt.Errorf("unsupported database url scheme")
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case MongoBackend:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return fmt.Errorf("MongoDB URI and database are required for mongodb backend")
		}
	}
	return nil
}

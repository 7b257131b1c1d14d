package session

import (
	"database/sql"
	"time"

	"github.com/alexedwards/scs/goredisstore"
	"github.com/alexedwards/scs/postgresstore"
	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/redis/go-redis/v9"
)

// NewMemoryStore keeps sessions in process memory. Sessions are lost on
// restart.
func NewMemoryStore() scs.Store {
	return memstore.New()
}

// NewRedisStore keeps sessions in Redis; expiry is left to key TTLs.
func NewRedisStore(client *redis.Client) scs.Store {
	return goredisstore.New(client)
}

// NewPostgresStore keeps sessions in the sessions table and deletes expired
// rows every cleanup interval. A zero interval disables the sweep.
func NewPostgresStore(db *sql.DB, cleanup time.Duration) scs.Store {
	return postgresstore.NewWithCleanupInterval(db, cleanup)
}

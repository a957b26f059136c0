package migrate

// The built-in platforms. New looks them up by name.
import (
	_ "github.com/versadb/migrate/database/mysql"
	_ "github.com/versadb/migrate/database/pgx"
	_ "github.com/versadb/migrate/database/postgres"
	_ "github.com/versadb/migrate/database/redshift"
	_ "github.com/versadb/migrate/database/snowflake"
	_ "github.com/versadb/migrate/database/sqlite"
	_ "github.com/versadb/migrate/database/sqlserver"
	_ "github.com/versadb/migrate/database/stub"
)

// Package all registers every storage backend and the SQL Server driver.
// Binaries import it for side effects.
package all

import (
	_ "github.com/microsoft/go-mssqldb"

	_ "rewardsetl/internal/storage/mssql"
	_ "rewardsetl/internal/storage/postgres"
	_ "rewardsetl/internal/storage/sqlite"
)

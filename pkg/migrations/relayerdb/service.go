// Package relayerdb holds the migrations of the relayer database
package relayerdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the ordered set of relayer database migrations
var Migrations = migrate.NewMigrations()

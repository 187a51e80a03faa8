package relayerdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	store "github.com/chainsafe/ckb-bridge-relayer/pkg/db"
	"github.com/chainsafe/ckb-bridge-relayer/pkg/db/dao"
	mghelper "github.com/chainsafe/ckb-bridge-relayer/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating unlock tables...")
		if err := mghelper.CreateSchemaAs(ctx, db, &dao.UnlockDao{}, store.UnlockTables()...); err != nil {
			return err
		}
		for _, table := range store.UnlockTables() {
			if err := mghelper.CreateIndexes(ctx, db, table, "status"); err != nil {
				return err
			}
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping unlock tables...")
		return mghelper.DropNamedTables(ctx, db, store.UnlockTables()...)
	})
}

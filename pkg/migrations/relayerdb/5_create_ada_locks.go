package relayerdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/db/dao"
	mghelper "github.com/chainsafe/ckb-bridge-relayer/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating ada_locks table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.AdaLockDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.AdaLockDao{}, "sender", "status")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping ada_locks table...")
		return mghelper.DropTables(ctx, db, &dao.AdaLockDao{})
	})
}

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
		log.Println("creating ckb_burns table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.CkbBurnDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.CkbBurnDao{}, "block_number", "confirm_status")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping ckb_burns table...")
		return mghelper.DropTables(ctx, db, &dao.CkbBurnDao{})
	})
}

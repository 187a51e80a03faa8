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
		log.Println("creating kv_store table...")
		return mghelper.CreateSchema(ctx, db, &dao.KVStoreDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping kv_store table...")
		return mghelper.DropTables(ctx, db, &dao.KVStoreDao{})
	})
}

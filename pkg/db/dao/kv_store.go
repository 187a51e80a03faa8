package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// KVStoreDao is a data access object that maps directly to the 'kv_store' table in PostgreSQL.
type KVStoreDao struct {
	bun.BaseModel `bun:"table:kv_store"`
	Key           string    `json:"key" bun:",pk,type:varchar(100)"`
	Value         string    `json:"value" bun:",notnull,type:varchar(255)"`
	UpdatedAt     time.Time `json:"updated_at" bun:",notnull,nullzero,default:current_timestamp"`
}

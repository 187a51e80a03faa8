package dao

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// UnlockDao maps the per-chain unlock tables (btc_unlocks, eth_unlocks, eos_unlocks,
// tron_unlocks, ada_unlocks). They share one layout; queries select the table with ModelTableExpr.
type UnlockDao struct {
	bun.BaseModel    `bun:"table:unlocks"`
	CkbTxHash        string          `json:"ckb_tx_hash" bun:",pk,type:varchar(66)"`
	Chain            int16           `json:"chain" bun:",notnull"`
	Asset            string          `json:"asset" bun:",notnull,type:varchar(255)"`
	AssetType        string          `json:"asset_type" bun:",notnull,type:varchar(10),default:''"`
	Amount           decimal.Decimal `json:"amount" bun:",notnull,type:numeric(78,0)"`
	RecipientAddress string          `json:"recipient_address" bun:",notnull,type:varchar(10240)"`
	Status           string          `json:"status" bun:",notnull,type:varchar(20)"`
	UnlockTxHash     *string         `json:"unlock_tx_hash,omitempty" bun:",type:varchar(255)"`
	Message          *string         `json:"message,omitempty" bun:",type:text"`
	CreatedAt        time.Time       `json:"created_at" bun:",notnull,nullzero,default:current_timestamp"`
	UpdatedAt        time.Time       `json:"updated_at" bun:",notnull,nullzero,default:current_timestamp"`
}

// AdaLockDao is a data access object that maps directly to the 'ada_locks' table in PostgreSQL.
type AdaLockDao struct {
	bun.BaseModel `bun:"table:ada_locks"`
	TxID          string          `json:"txid" bun:"txid,pk,type:varchar(255)"`
	Sender        string          `json:"sender" bun:",notnull,type:varchar(255)"`
	Amount        decimal.Decimal `json:"amount" bun:",notnull,type:numeric(78,0)"`
	BridgeFee     decimal.Decimal `json:"bridge_fee" bun:",notnull,type:numeric(78,0),default:0"`
	Recipient     string          `json:"recipient" bun:",notnull,type:varchar(10240)"`
	SudtExtraData string          `json:"sudt_extra_data" bun:",notnull,type:varchar(10240),default:''"`
	Data          string          `json:"data" bun:",notnull,type:varchar(10240),default:''"`
	Direction     string          `json:"direction" bun:",notnull,type:varchar(20)"`
	Status        string          `json:"status" bun:",notnull,type:varchar(20),default:'pending'"`
	ConfirmNumber int64           `json:"confirm_number" bun:",notnull,default:0"`
	CreatedAt     time.Time       `json:"created_at" bun:",notnull,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time       `json:"updated_at" bun:",notnull,nullzero,default:current_timestamp"`
}

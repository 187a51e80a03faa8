package dao

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// CkbBurnDao is a data access object that maps directly to the 'ckb_burns' table in PostgreSQL.
type CkbBurnDao struct {
	bun.BaseModel    `bun:"table:ckb_burns"`
	CkbTxHash        string          `json:"ckb_tx_hash" bun:",pk,type:varchar(66)"`
	SenderLockHash   string          `json:"sender_lock_hash" bun:",notnull,type:varchar(66)"`
	Chain            int16           `json:"chain" bun:",notnull"`
	Asset            string          `json:"asset" bun:",notnull,type:varchar(255)"`
	Amount           decimal.Decimal `json:"amount" bun:",notnull,type:numeric(78,0)"`
	BridgeFee        decimal.Decimal `json:"bridge_fee" bun:",notnull,type:numeric(78,0),default:0"`
	RecipientAddress string          `json:"recipient_address" bun:",notnull,type:varchar(10240)"`
	BlockNumber      int64           `json:"block_number" bun:",notnull"`
	ConfirmNumber    int64           `json:"confirm_number" bun:",notnull,default:0"`
	ConfirmStatus    string          `json:"confirm_status" bun:",notnull,type:varchar(20)"`
	CreatedAt        time.Time       `json:"created_at" bun:",notnull,nullzero,default:current_timestamp"`
	UpdatedAt        time.Time       `json:"updated_at" bun:",notnull,nullzero,default:current_timestamp"`
}

// CkbMintDao is a data access object that maps directly to the 'ckb_mints' table in PostgreSQL.
type CkbMintDao struct {
	bun.BaseModel       `bun:"table:ckb_mints"`
	ID                  string          `json:"id" bun:",pk,type:varchar(255)"`
	Chain               int16           `json:"chain" bun:",notnull"`
	Asset               string          `json:"asset" bun:",notnull,type:varchar(255)"`
	Amount              decimal.Decimal `json:"amount" bun:",notnull,type:numeric(78,0)"`
	RecipientLockscript string          `json:"recipient_lockscript" bun:",notnull,type:varchar(10240)"`
	SudtExtraData       string          `json:"sudt_extra_data" bun:",notnull,type:varchar(10240),default:''"`
	Status              string          `json:"status" bun:",notnull,type:varchar(20)"`
	MintHash            *string         `json:"mint_hash,omitempty" bun:",type:varchar(66)"`
	Message             *string         `json:"message,omitempty" bun:",type:text"`
	CreatedAt           time.Time       `json:"created_at" bun:",notnull,nullzero,default:current_timestamp"`
	UpdatedAt           time.Time       `json:"updated_at" bun:",notnull,nullzero,default:current_timestamp"`
}

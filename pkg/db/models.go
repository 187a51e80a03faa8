package db

import (
	"time"

	"github.com/chainsafe/ckb-bridge-relayer/pkg/asset"
)

// BurnConfirmStatus is the depth state of a burn record
type BurnConfirmStatus string

const (
	BurnUnconfirmed BurnConfirmStatus = "unconfirmed"
	BurnConfirmed   BurnConfirmStatus = "confirmed"
)

// Burn is a CKB burn of a wrapped asset awaiting or past confirmation depth
type Burn struct {
	CkbTxHash        string            `json:"ckb_tx_hash"`
	SenderLockHash   string            `json:"sender_lock_hash"`
	Chain            asset.ChainType   `json:"chain"`
	Asset            string            `json:"asset"`
	Amount           string            `json:"amount"`
	BridgeFee        string            `json:"bridge_fee"`
	RecipientAddress string            `json:"recipient_address"`
	BlockNumber      uint64            `json:"block_number"`
	ConfirmNumber    uint64            `json:"confirm_number"`
	ConfirmStatus    BurnConfirmStatus `json:"confirm_status"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// MintStatus is the processing state of a mint request
type MintStatus string

const (
	MintPending MintStatus = "pending"
	MintSuccess MintStatus = "success"
	MintError   MintStatus = "error"
)

// Mint is a request to mint a wrapped asset on CKB
type Mint struct {
	ID                  string          `json:"id"`
	Chain               asset.ChainType `json:"chain"`
	Asset               string          `json:"asset"`
	Amount              string          `json:"amount"`
	RecipientLockscript string          `json:"recipient_lockscript"`
	SudtExtraData       string          `json:"sudt_extra_data"`
	Status              MintStatus      `json:"status"`
	MintHash            string          `json:"mint_hash,omitempty"`
	Message             string          `json:"message,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// UnlockStatus is the processing state of an unlock on the origin chain
type UnlockStatus string

const (
	UnlockPending UnlockStatus = "pending"
	UnlockSuccess UnlockStatus = "success"
	UnlockError   UnlockStatus = "error"
)

// Unlock is a release of the original asset on its origin chain, created from a confirmed burn
type Unlock struct {
	CkbTxHash        string          `json:"ckb_tx_hash"`
	Chain            asset.ChainType `json:"chain"`
	Asset            string          `json:"asset"`
	AssetType        string          `json:"asset_type,omitempty"`
	Amount           string          `json:"amount"`
	RecipientAddress string          `json:"recipient_address"`
	Status           UnlockStatus    `json:"status"`
	UnlockTxHash     string          `json:"unlock_tx_hash,omitempty"`
	Message          string          `json:"message,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// AdaLockStatus tracks a Cardano lock through the ledger
type AdaLockStatus string

const (
	AdaLockPending   AdaLockStatus = "pending"
	AdaLockSubmitted AdaLockStatus = "submitted"
	AdaLockInLedger  AdaLockStatus = "in_ledger"
	AdaLockExpired   AdaLockStatus = "expired"
)

// AdaLock is a Cardano-side lock that backs a mint
type AdaLock struct {
	TxID          string        `json:"txid"`
	Sender        string        `json:"sender"`
	Amount        string        `json:"amount"`
	BridgeFee     string        `json:"bridge_fee"`
	Recipient     string        `json:"recipient"`
	SudtExtraData string        `json:"sudt_extra_data"`
	Data          string        `json:"data"`
	Direction     string        `json:"direction"`
	Status        AdaLockStatus `json:"status"`
	ConfirmNumber uint64        `json:"confirm_number"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// AdaLockConfirmation is a confirmation progress update for one lock
type AdaLockConfirmation struct {
	TxID          string
	ConfirmNumber uint64
	Status        AdaLockStatus
}

// BridgeInUpdate fills a mint record from its backing lock
type BridgeInUpdate struct {
	MintID        string
	LockAmount    string
	Asset         string
	Recipient     string
	SudtExtraData string
}

package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// TxStatus is the closed set of transaction outcomes.
type TxStatus uint8

const (
	TxPending TxStatus = iota
	TxSuccess
	TxFailed
)

func (s TxStatus) String() string {
	switch s {
	case TxPending:
		return "pending"
	case TxSuccess:
		return "success"
	case TxFailed:
		return "failed"
	}
	return fmt.Sprintf("TxStatus(%d)", uint8(s))
}

// Resolved reports whether the status is terminal.
func (s TxStatus) Resolved() bool {
	return s == TxSuccess || s == TxFailed
}

// ParseTxStatus parses the string form produced by String.
func ParseTxStatus(v string) (TxStatus, error) {
	switch v {
	case "pending":
		return TxPending, nil
	case "success":
		return TxSuccess, nil
	case "failed":
		return TxFailed, nil
	}
	return 0, fmt.Errorf("unknown transaction status %q", v)
}

func (s TxStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *TxStatus) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parsed, err := ParseTxStatus(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// TxKind labels what a recorded transaction did.
type TxKind string

const (
	KindSwap    TxKind = "swap"
	KindApprove TxKind = "approve"
	KindMint    TxKind = "mint"
	KindStake   TxKind = "stake"
)

// TxRecord is one entry of a wallet's transaction history.
// JSON tags use camelCase to match the UI's expectations.
type TxRecord struct {
	Hash        string     `json:"hash"`
	Owner       string     `json:"owner"` // lowercase hex
	ChainID     int64      `json:"chainId"`
	Kind        TxKind     `json:"kind"`
	Status      TxStatus   `json:"status"`
	TokenIn     string     `json:"tokenIn,omitempty"`
	TokenOut    string     `json:"tokenOut,omitempty"`
	AmountIn    float64    `json:"amountIn,omitempty"`
	AmountOut   float64    `json:"amountOut,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ResolvedAt  *time.Time `json:"resolvedAt,omitempty"`
	BlockNumber uint64     `json:"blockNumber,omitempty"`
	GasUsed     uint64     `json:"gasUsed,omitempty"`
}

// Resolution carries the receipt fields written when a transaction resolves.
type Resolution struct {
	Status      TxStatus
	ResolvedAt  time.Time
	BlockNumber uint64
	GasUsed     uint64
}

// PaginatedTxRecords represents a page of a wallet's history.
type PaginatedTxRecords struct {
	Transactions []TxRecord `json:"transactions"`
	Total        int        `json:"total"`
	Limit        int        `json:"limit"`
	Offset       int        `json:"offset"`
}

// Preference keys.
const (
	PrefGasSettings = "gasSettings"
	PrefCurrency    = "currency"
	PrefLanguage    = "language"
	PrefTheme       = "theme"
)

package model

// WalletBalance is the futures wallet snapshot pushed by the executor.
type WalletBalance struct {
	Asset string  `json:"asset"`
	Free  float64 `json:"free"`
	Total float64 `json:"total"`
	TS    int64   `json:"ts"` // unix millis
}

// OrderKind distinguishes the two protective orders attached to an entry.
type OrderKind string

const (
	OrderKindTP OrderKind = "TP"
	OrderKindSL OrderKind = "SL"
)

// Valid reports whether k is TP or SL.
func (k OrderKind) Valid() bool { return k == OrderKindTP || k == OrderKindSL }

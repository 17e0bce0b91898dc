package model

// PositionState is the coarse position state gating signal re-entry.
//
// The original optimistic design flipped straight to LONG/SHORT at dispatch
// time; the PENDING states hold the gate closed between dispatch and the
// executor's fill acknowledgement so a failed fill can revert to NONE
// instead of wedging the tracker on a position that doesn't exist.
type PositionState string

const (
	PositionNone         PositionState = "NONE"
	PositionPendingLong  PositionState = "PENDING_LONG"
	PositionPendingShort PositionState = "PENDING_SHORT"
	PositionLong         PositionState = "LONG"
	PositionShort        PositionState = "SHORT"
)

// Valid reports whether s is one of the five defined states.
func (s PositionState) Valid() bool {
	switch s {
	case PositionNone, PositionPendingLong, PositionPendingShort, PositionLong, PositionShort:
		return true
	}
	return false
}

// Pending reports whether the state is awaiting an execution acknowledgement.
func (s PositionState) Pending() bool {
	return s == PositionPendingLong || s == PositionPendingShort
}

// Position is one open exchange position as reported by the executor.
type Position struct {
	Symbol        string     `json:"symbol"`
	Side          SignalType `json:"side"` // LONG or SHORT
	Qty           float64    `json:"qty"`
	EntryPrice    float64    `json:"entry_price"`
	UnrealizedPnL float64    `json:"unrealized_pnl"`
	Leverage      int        `json:"leverage"`
}

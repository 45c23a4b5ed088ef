package notify

import "time"

// Message is the wire form of one ledger notification.
type Message struct {
	ID        string    `json:"id"`
	Contract  string    `json:"contract"`
	Seq       uint64    `json:"seq"`
	Name      string    `json:"name"`
	Topics    []string  `json:"topics"`
	Value     string    `json:"value,omitempty"`
	TxHash    string    `json:"txHash,omitempty"`
	Block     uint64    `json:"block"`
	RelayedAt time.Time `json:"relayedAt"`
}

// Key partitions messages by their last indexed subject (the recipient or minter), so
// every notification about one identity lands in order on one partition.
func (m Message) Key() string {
	if n := len(m.Topics); n > 0 {
		return m.Topics[n-1]
	}
	return m.Contract
}

package model

import "time"

// Address represents a ledger address in API responses and storage.
type Address struct {
	Address    string    `json:"address"`
	Balance    uint64    `json:"balance"`
	TotalIn    uint64    `json:"totalin"`
	TotalOut   uint64    `json:"totalout"`
	FirstSeen  time.Time `json:"firstseen"`
	NamesOwned *int      `json:"names,omitempty"`
}

// Transaction represents a completed transfer between two addresses.
type Transaction struct {
	ID       string    `json:"id"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Amount   uint64    `json:"value"`
	Metadata string    `json:"metadata,omitempty"`
	Time     time.Time `json:"time"`
}

package domain

import "sort"

// Message is one sent text in the append-only "messages" collection.
// Participants always holds exactly {From, To}; it exists so a single query
// can match "any message involving me" without knowing the partner.
type Message struct {
	ID           string   `json:"id,omitempty"`
	From         string   `json:"from"`
	To           string   `json:"to"`
	Text         string   `json:"text"`
	CreatedAt    int64    `json:"createdAt"`
	Participants []string `json:"participants"`
}

// Between reports whether the message belongs to the conversation between
// a and b, in either direction.
func (m Message) Between(a, b string) bool {
	return (m.From == a && m.To == b) || (m.From == b && m.To == a)
}

// SortMessages orders a conversation ascending by send time, ties broken by
// the store-assigned id so two readers always agree on the order.
func SortMessages(msgs []Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt != msgs[j].CreatedAt {
			return msgs[i].CreatedAt < msgs[j].CreatedAt
		}
		return msgs[i].ID < msgs[j].ID
	})
}

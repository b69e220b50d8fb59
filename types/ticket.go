package types

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// Ticket names a pipeline run for its entire lifetime.
// The id is generated at record creation and never reused.
type Ticket struct {
	ID uuid.UUID `json:"id"`
}

// NewTicket creates a ticket with a fresh random id.
func NewTicket() Ticket {
	return Ticket{ID: uuid.New()}
}

// Hex returns the 32-character lowercase hex encoding of the ticket id.
// This is the form used as the store hash field and the cache directory name.
func (t Ticket) Hex() string {
	return hex.EncodeToString(t.ID[:])
}

// ParseTicketHex parses a 32-character hex string into a Ticket.
func ParseTicketHex(s string) (Ticket, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return Ticket{}, fmt.Errorf("invalid ticket id %q: %w", s, err)
	}
	return Ticket{ID: id}, nil
}

// IsTicketHex reports whether s parses as a ticket id. Used by the
// zombie sweep to decide whether a cache directory belongs to us.
func IsTicketHex(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

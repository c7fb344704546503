// Package session tracks per-conversation ordering state extracted from
// tool results and replays it to the model as hint text on later turns.
package session

import (
	"fmt"
	"strings"

	"github.com/effective-security/x/slices"
)

const (
	// maxEntries bounds the remembered address/restaurant lists.
	maxEntries = 5
	// maxHintSize bounds the rendered hint block.
	maxHintSize = 800
)

// Entry is one remembered list item: an identifier with its display label.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Context is the per-conversation state the agent accumulates while
// operating the tool servers. The model never sees it directly, only the
// rendered Hints text.
type Context struct {
	AddressID    string  `json:"address_id,omitempty"`
	RestaurantID string  `json:"restaurant_id,omitempty"`
	CartID       string  `json:"cart_id,omitempty"`
	Addresses    []Entry `json:"addresses,omitempty"`
	Restaurants  []Entry `json:"restaurants,omitempty"`
}

// Empty reports whether nothing has been learned yet.
func (c *Context) Empty() bool {
	return c.AddressID == "" && c.RestaurantID == "" && c.CartID == "" &&
		len(c.Addresses) == 0 && len(c.Restaurants) == 0
}

// Clone returns a deep copy.
func (c *Context) Clone() *Context {
	out := *c
	out.Addresses = append([]Entry(nil), c.Addresses...)
	out.Restaurants = append([]Entry(nil), c.Restaurants...)
	return &out
}

// Hints renders the known identifiers as an instruction block appended to
// the user turn, telling the model to reuse them instead of asking again.
// Returns "" when nothing is known. The output is size-bounded.
func (c *Context) Hints() string {
	if c.Empty() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Known session context (reuse these saved identifiers, do not ask the user for them again):\n")
	if c.AddressID != "" {
		fmt.Fprintf(&sb, "- addressId: %s\n", c.AddressID)
	}
	if c.RestaurantID != "" {
		fmt.Fprintf(&sb, "- restaurantId: %s\n", c.RestaurantID)
	}
	if c.CartID != "" {
		fmt.Fprintf(&sb, "- cartId: %s\n", c.CartID)
	}
	if len(c.Addresses) > 0 {
		fmt.Fprintf(&sb, "- saved addresses: %s\n", formatEntries(c.Addresses))
	}
	if len(c.Restaurants) > 0 {
		fmt.Fprintf(&sb, "- recent restaurants: %s\n", formatEntries(c.Restaurants))
	}
	return slices.StringUpto(strings.TrimSuffix(sb.String(), "\n"), maxHintSize)
}

func formatEntries(entries []Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Name != "" {
			parts = append(parts, fmt.Sprintf("%s (%s)", slices.StringUpto(e.Name, 48), e.ID))
		} else {
			parts = append(parts, e.ID)
		}
	}
	return strings.Join(parts, "; ")
}

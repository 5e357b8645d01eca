package domain

import (
	"math"
	"time"
)

// OwnerMode says which persisted cart representation a key belongs to.
// Guest carts and authenticated carts are stored under distinct keys and
// are never simultaneously authoritative.
type OwnerMode string

const (
	OwnerModeGuest OwnerMode = "guest"
	OwnerModeUser  OwnerMode = "user"
)

// Owner identifies a cart by mode plus principal ID (guest token or user ID).
type Owner struct {
	Mode OwnerMode
	ID   string
}

// Key is the storage key for the owner's cart record.
func (o Owner) Key() string {
	return string(o.Mode) + ":" + o.ID
}

type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"-"`
	OwnerKey  string     `bson:"owner_key" json:"owner_key"`
	Lines     []CartLine `bson:"lines" json:"lines"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

type CartLine struct {
	ProductID string    `bson:"product_id" json:"product_id"`
	Name      string    `bson:"name" json:"name"`
	UnitPrice float64   `bson:"unit_price" json:"unit_price"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	Variant   string    `bson:"variant,omitempty" json:"variant,omitempty"`
	ImageURL  string    `bson:"image_url,omitempty" json:"image_url,omitempty"`
	AddedAt   time.Time `bson:"added_at" json:"added_at"`
}

// Total sums unit_price * quantity over all lines. Malformed prices
// (NaN, Inf, negative) count as zero so a corrupted record can never
// produce a bogus charge amount.
func (c *Cart) Total() float64 {
	var total float64
	for _, l := range c.Lines {
		price := l.UnitPrice
		if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
			price = 0
		}
		total += price * float64(l.Quantity)
	}
	return total
}

// UnitCount returns the total number of units across all lines,
// not the number of distinct lines.
func (c *Cart) UnitCount() int {
	var n int
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// LineIndex returns the index of the line holding productID, or -1.
func (c *Cart) LineIndex(productID string) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

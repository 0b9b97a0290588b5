// Package cart holds the in-memory order being assembled on a kiosk.
package cart

import (
	"errors" // Sentinel errors

	"kiosk_system/internal/domain" // Cart lines and order details
)

// MaxQuantity is the most units a single line may hold
const MaxQuantity = 999

var (
	ErrIndexOutOfRange = errors.New("cart: line index out of range")           // No line at that index
	ErrQuantityLimit   = errors.New("cart: quantity above the per-line limit") // Line would exceed MaxQuantity
	ErrInvalidPrice    = errors.New("cart: unit price must not be negative")   // Menu item priced below zero
	ErrTotalOverflow   = errors.New("cart: order total out of range")          // Total would not fit in int64
)

// Item is what a customer picks from the menu
type Item struct {
	ID        string // Menu item id
	Name      string // Display name
	UnitPrice int64  // Price in minor units, non-negative
}

// Cart is an ordered list of lines with no two lines sharing a merge key.
// Every mutation leaves the total representable, so Total never overflows.
// It is not safe for concurrent use; the owning session serializes access.
type Cart struct {
	lines []domain.CartItem // Insertion order
}

// New returns an empty cart
func New() *Cart {
	return &Cart{}
}

// AddItem merges into the line with the same (item, options) key or appends a new line.
// The cart is unchanged when an error is returned.
func (c *Cart) AddItem(item Item, options domain.Options) error {
	if item.UnitPrice < 0 {
		return ErrInvalidPrice // Never let a negative line reduce the total
	}
	line := domain.CartItem{
		ItemID:          item.ID,
		Name:            item.Name,
		UnitPrice:       item.UnitPrice,
		SelectedOptions: options.Clone(), // Never alias the caller's map
		Quantity:        1,
	}
	key := line.Key() // Merge identity
	for i := range c.lines {
		if c.lines[i].Key() == key {
			return c.setQuantity(i, c.lines[i].Quantity+1)
		}
	}
	c.lines = append(c.lines, line)
	if _, err := c.sum(); err != nil {
		c.lines = c.lines[:len(c.lines)-1] // Roll back the append
		return err
	}
	return nil
}

// ChangeQuantity adds delta to the line's quantity. A result below 1 removes the line;
// a result above MaxQuantity is refused with ErrQuantityLimit.
func (c *Cart) ChangeQuantity(index, delta int) error {
	if index < 0 || index >= len(c.lines) {
		return ErrIndexOutOfRange
	}
	current := c.lines[index].Quantity // 1..MaxQuantity
	if delta > MaxQuantity-current {
		return ErrQuantityLimit // Checked before adding so delta cannot wrap
	}
	q := current + delta // Cannot underflow: current >= 1
	if q < 1 {
		c.lines = append(c.lines[:index], c.lines[index+1:]...)
		return nil
	}
	return c.setQuantity(index, q)
}

// setQuantity applies q to the line unless the limit or the total would break
func (c *Cart) setQuantity(index, q int) error {
	if q > MaxQuantity {
		return ErrQuantityLimit
	}
	previous := c.lines[index].Quantity
	c.lines[index].Quantity = q
	if _, err := c.sum(); err != nil {
		c.lines[index].Quantity = previous // Roll back
		return err
	}
	return nil
}

// RemoveItem drops the line at index
func (c *Cart) RemoveItem(index int) error {
	if index < 0 || index >= len(c.lines) {
		return ErrIndexOutOfRange
	}
	c.lines = append(c.lines[:index], c.lines[index+1:]...)
	return nil
}

// sum is the overflow-checked multiply-add of unit price times quantity
func (c *Cart) sum() (int64, error) {
	var total int64
	for _, l := range c.lines {
		line, err := l.LineTotal()
		if err != nil {
			return 0, ErrTotalOverflow
		}
		if total, err = domain.AddAmount(total, line); err != nil {
			return 0, ErrTotalOverflow
		}
	}
	return total, nil
}

// Total is the sum of unit price times quantity over all lines
func (c *Cart) Total() int64 {
	total, err := c.sum()
	if err != nil {
		return 0 // Unreachable while mutations go through AddItem and ChangeQuantity
	}
	return total
}

// Len returns the number of lines
func (c *Cart) Len() int {
	return len(c.lines)
}

// Clear empties the cart
func (c *Cart) Clear() {
	c.lines = nil
}

// Lines returns a deep copy of the lines
func (c *Cart) Lines() []domain.CartItem {
	out := make([]domain.CartItem, len(c.lines))
	for i, l := range c.lines {
		l.SelectedOptions = l.SelectedOptions.Clone() // Detach the options map
		out[i] = l
	}
	return out
}

// Snapshot freezes the cart into order details for a checkout attempt
func (c *Cart) Snapshot() domain.OrderDetails {
	return domain.OrderDetails{Items: c.Lines(), TotalAmount: c.Total()}
}

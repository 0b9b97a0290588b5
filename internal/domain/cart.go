package domain

import (
	"errors"
	"math"
	"sort"
	"strings"
)

// ErrAmountOverflow means a price times quantity no longer fits in int64
var ErrAmountOverflow = errors.New("order amount out of range")

// Options maps an option name to the chosen value, e.g. {"size": "L"}
type Options map[string]string

// Canonical returns a stable serialization of the options used as a merge key.
// Names are sorted; separators inside names and values are escaped.
func (o Options) Canonical() string {
	if len(o) == 0 {
		return ""
	}
	names := make([]string, 0, len(o))
	for name := range o {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(escapeOption(name))
		b.WriteByte('=')
		b.WriteString(escapeOption(o[name]))
	}
	return b.String()
}

// Clone copies the options so the cart never aliases caller maps
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	c := make(Options, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `;`, `\;`, `=`, `\=`)
	itemEscaper   = strings.NewReplacer(`\`, `\\`, `|`, `\|`)
)

func escapeOption(s string) string {
	return optionEscaper.Replace(s)
}

// CartItem is one line of an order in progress
type CartItem struct {
	ItemID          string  `json:"itemId"`          // Menu item id
	Name            string  `json:"name"`            // Display name at the time it was added
	UnitPrice       int64   `json:"unitPrice"`       // Price in minor currency units
	SelectedOptions Options `json:"selectedOptions"` // Chosen options
	Quantity        int     `json:"quantity"`        // Always >= 1
}

// Key is the merge identity of the line. The id is escaped so a '|' inside it
// cannot run into the options.
func (c CartItem) Key() string {
	return itemEscaper.Replace(c.ItemID) + "|" + c.SelectedOptions.Canonical()
}

// LineTotal is unit price times quantity, ErrAmountOverflow if either is
// negative or the product does not fit.
func (c CartItem) LineTotal() (int64, error) {
	q := int64(c.Quantity)
	if c.UnitPrice < 0 || q < 0 {
		return 0, ErrAmountOverflow
	}
	if q != 0 && c.UnitPrice > math.MaxInt64/q {
		return 0, ErrAmountOverflow
	}
	return c.UnitPrice * q, nil
}

// AddAmount sums two non-negative amounts, ErrAmountOverflow past MaxInt64
func AddAmount(a, b int64) (int64, error) {
	if a < 0 || b < 0 || a > math.MaxInt64-b {
		return 0, ErrAmountOverflow
	}
	return a + b, nil
}

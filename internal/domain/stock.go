package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StockSourceKind distinguishes the regular item pool from a damaged item pool.
type StockSourceKind uint8

const (
	StockSourceItem StockSourceKind = iota + 1
	StockSourceDamagedItem
)

// String implements fmt.Stringer.
func (k StockSourceKind) String() string {
	switch k {
	case StockSourceItem:
		return "item"
	case StockSourceDamagedItem:
		return "damaged_item"
	default:
		return "unknown"
	}
}

// StockSource identifies the stock pool a quantity is drawn from. The zero value is invalid.
type StockSource struct {
	kind      StockSourceKind
	itemID    int64
	damagedID int64
}

// ItemSource returns the regular stock pool of an item.
func ItemSource(itemID int64) StockSource {
	return StockSource{kind: StockSourceItem, itemID: itemID}
}

// DamagedItemSource returns the damaged stock pool of an item.
func DamagedItemSource(itemID, damagedItemID int64) StockSource {
	return StockSource{kind: StockSourceDamagedItem, itemID: itemID, damagedID: damagedItemID}
}

// Kind reports which pool the source refers to.
func (s StockSource) Kind() StockSourceKind { return s.kind }

// ItemID returns the parent item id for both kinds.
func (s StockSource) ItemID() int64 { return s.itemID }

// DamagedItemID returns the damaged item id, or zero for regular stock.
func (s StockSource) DamagedItemID() int64 { return s.damagedID }

// IsDamaged reports whether the source is a damaged item pool.
func (s StockSource) IsDamaged() bool { return s.kind == StockSourceDamagedItem }

// Valid reports whether the source carries the ids its kind requires.
func (s StockSource) Valid() bool {
	switch s.kind {
	case StockSourceItem:
		return s.itemID > 0
	case StockSourceDamagedItem:
		return s.itemID > 0 && s.damagedID > 0
	}
	return false
}

// DamagedItemIDPtr returns the damaged item id as a nullable column value.
func (s StockSource) DamagedItemIDPtr() *int64 {
	if !s.IsDamaged() {
		return nil
	}
	id := s.damagedID
	return &id
}

// String implements fmt.Stringer.
func (s StockSource) String() string {
	if s.IsDamaged() {
		return fmt.Sprintf("damaged_item:%d", s.damagedID)
	}
	return fmt.Sprintf("item:%d", s.itemID)
}

// StockLevel is the uniform price and availability view of a stock source.
type StockLevel struct {
	Source    StockSource
	Name      string
	Price     decimal.Decimal
	Available int
}

// Covers reports whether qty units can be drawn from the level.
func (l StockLevel) Covers(qty int) bool {
	return qty > 0 && l.Available >= qty
}

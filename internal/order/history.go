package order

import (
	"cmp"
	"slices"
)

func sortHistory(items []ChangeItem) {
	slices.SortStableFunc(items, func(a, b ChangeItem) int {
		if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
			return c
		}
		if c := cmp.Compare(a.DateKey, b.DateKey); c != 0 {
			return c
		}
		return cmp.Compare(a.FieldName, b.FieldName)
	})
}

// HistorySince returns the change items with Seq greater than after.
// The store uses this to persist only items produced by the current batch.
func (o *Order) HistorySince(after int64) []ChangeItem {
	var out []ChangeItem
	for _, item := range o.SubOrders.History() {
		if item.Seq > after {
			out = append(out, item)
		}
	}
	return out
}

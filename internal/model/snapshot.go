package model

// Snapshot is the read projection of a collection.
// Recomputed on every read; never stored or mutated.
type Snapshot struct {
	Items     []LineItem `json:"items"`
	Subtotal  int64      `json:"subtotal"` // cents
	ItemCount int        `json:"item_count"`
	HasItems  bool       `json:"has_items"`
}

// Project computes the snapshot of items. The returned Items slice is a copy.
func Project(items []LineItem) Snapshot {
	out := make([]LineItem, len(items))
	copy(out, items)

	snap := Snapshot{Items: out, HasItems: len(out) > 0}
	for _, item := range out {
		snap.Subtotal += item.UnitPrice() * int64(item.Quantity)
		snap.ItemCount += item.Quantity
	}
	return snap
}

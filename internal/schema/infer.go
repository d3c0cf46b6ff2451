package schema

import "rewardsetl/pkg/records"

// ItemsField is the receipt field holding the line-item list.
const ItemsField = "rewardsReceiptItemList"

// Infer scans the nested list stored under field in every record and returns
// the column catalog of its items, in discovery order.
//
// Records without the field, fields that are not lists, and list elements
// that are not objects contribute nothing.
func Infer(recs []*records.Record, field string) *Catalog {
	c := NewCatalog()
	for _, rec := range recs {
		raw, ok := rec.Get(field)
		if !ok {
			continue
		}
		items, ok := raw.([]any)
		if !ok {
			continue
		}
		for _, elem := range items {
			item, ok := elem.(*records.Record)
			if !ok || item == nil {
				continue
			}
			for _, k := range item.Keys() {
				v, _ := item.Get(k)
				c.Observe(k, Classify(v))
			}
		}
	}
	return c
}

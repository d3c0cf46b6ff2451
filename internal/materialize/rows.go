package materialize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"rewardsetl/internal/schema"
	"rewardsetl/pkg/records"
)

// ErrMissingID is returned in strict mode for a record without _id.$oid.
var ErrMissingID = errors.New("missing _id.$oid")

var receiptDates = []string{"createDate", "dateScanned", "finishedDate", "modifyDate", "purchaseDate", "pointsAwardedDate"}

// recordID reads _id.$oid. An absent identifier is nil so the row binds NULL.
func recordID(r *records.Record, strict bool) (any, error) {
	id, ok, err := r.Ref(identifier, "$oid")
	if err != nil {
		return nil, err
	}
	if !ok {
		if strict {
			return nil, ErrMissingID
		}
		return nil, nil
	}
	return id, nil
}

// receiptRow derives one receipts row in ReceiptsSpec column order.
func receiptRow(r *records.Record, strict bool) ([]any, error) {
	id, err := recordID(r, strict)
	if err != nil {
		return nil, err
	}

	dates := make(map[string]any, len(receiptDates))
	for _, f := range receiptDates {
		if dates[f], err = optRef(r, f, "$date"); err != nil {
			return nil, err
		}
	}

	bonus, err := optFloat(r, "bonusPointsEarned")
	if err != nil {
		return nil, err
	}
	bonusReason, err := optText(r, "bonusPointsEarnedReason")
	if err != nil {
		return nil, err
	}
	points, err := optFloat(r, "pointsEarned")
	if err != nil {
		return nil, err
	}
	itemCount, err := optFloat(r, "purchasedItemCount")
	if err != nil {
		return nil, err
	}
	status, err := optText(r, "rewardsReceiptStatus")
	if err != nil {
		return nil, err
	}
	total, _, err := r.Float("totalSpent")
	if err != nil {
		return nil, err
	}
	userID, err := optText(r, "userId")
	if err != nil {
		return nil, err
	}

	return []any{
		id,
		bonus,
		bonusReason,
		dates["createDate"],
		dates["dateScanned"],
		dates["finishedDate"],
		dates["modifyDate"],
		dates["purchaseDate"],
		dates["pointsAwardedDate"],
		points,
		itemCount,
		status,
		total,
		userID,
	}, nil
}

// itemRows derives the receipt_items rows of one receipt. Each row is the
// parent identifier followed by one value per catalog column.
func itemRows(r *records.Record, parentID any, cat *schema.Catalog) ([][]any, error) {
	items, err := r.Objects(schema.ItemsField)
	if err != nil {
		return nil, err
	}

	cols := cat.Columns()
	out := make([][]any, 0, len(items))
	for i, item := range items {
		row := make([]any, 0, len(cols)+1)
		row = append(row, parentID)
		for _, c := range cols {
			raw, _ := item.Get(c.Name)
			v, err := coerce(raw, c.Kind)
			if err != nil {
				return nil, fmt.Errorf("%s[%d].%s: %w", schema.ItemsField, i, c.Name, err)
			}
			row = append(row, v)
		}
		out = append(out, row)
	}
	return out, nil
}

// coerce converts an item value to the Go type bound for a column of kind k.
// TEXT columns receive strings; nested objects and arrays are stored as JSON.
func coerce(v any, k schema.Kind) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch k {
	case schema.KindInteger:
		return records.ToInt(v)
	case schema.KindReal:
		return records.ToFloat(v)
	}

	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
}

// brandRow derives one brands row. cpg is rendered "<$ref>: <$id.$oid>",
// with empty parts when either is missing.
func brandRow(r *records.Record, strict bool) ([]any, error) {
	id, err := recordID(r, strict)
	if err != nil {
		return nil, err
	}

	var texts [4]any
	for i, f := range []string{"barcode", "brandCode", "category", "categoryCode"} {
		if texts[i], err = optText(r, f); err != nil {
			return nil, err
		}
	}

	var cpg any
	ref, ok, err := r.Object("cpg")
	if err != nil {
		return nil, err
	}
	if ok {
		kind, _, err := ref.Text("$ref")
		if err != nil {
			return nil, err
		}
		refID, _, err := ref.Ref("$id", "$oid")
		if err != nil {
			return nil, fmt.Errorf("cpg: %w", err)
		}
		cpg = kind + ": " + refID
	}

	top, _, err := r.Int("topBrand")
	if err != nil {
		return nil, err
	}
	name, err := optText(r, "name")
	if err != nil {
		return nil, err
	}

	return []any{id, texts[0], texts[1], texts[2], texts[3], cpg, top, name}, nil
}

func userRow(r *records.Record, strict bool) ([]any, error) {
	id, err := recordID(r, strict)
	if err != nil {
		return nil, err
	}
	state, err := optText(r, "state")
	if err != nil {
		return nil, err
	}
	created, err := optRef(r, "createdDate", "$date")
	if err != nil {
		return nil, err
	}
	lastLogin, err := optRef(r, "lastLogin", "$date")
	if err != nil {
		return nil, err
	}
	role, err := optText(r, "role")
	if err != nil {
		return nil, err
	}
	active, _, err := r.Int("active")
	if err != nil {
		return nil, err
	}
	return []any{id, state, created, lastLogin, role, active}, nil
}

// The opt* helpers return nil for an absent value so it binds as NULL.

func optRef(r *records.Record, field, key string) (any, error) {
	s, ok, err := r.Ref(field, key)
	if err != nil || !ok {
		return nil, err
	}
	return s, nil
}

func optText(r *records.Record, field string) (any, error) {
	s, ok, err := r.Text(field)
	if err != nil || !ok {
		return nil, err
	}
	return s, nil
}

func optFloat(r *records.Record, field string) (any, error) {
	f, ok, err := r.Float(field)
	if err != nil || !ok {
		return nil, err
	}
	return f, nil
}

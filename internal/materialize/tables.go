// Package materialize turns extracted records into rows of the four
// relational tables and loads them through a storage.Repository.
//
// receipts and receipt_items are rebuilt on every run: the item columns come
// from the inferred catalog, which may differ between runs. brands and users
// have fixed schemas and are created only when absent.
package materialize

import (
	"strings"

	"rewardsetl/internal/schema"
	"rewardsetl/internal/storage"
)

const (
	TableReceipts     = "receipts"
	TableReceiptItems = "receipt_items"
	TableBrands       = "brands"
	TableUsers        = "users"
)

// Tables lists every table the loader owns, parents first.
var Tables = []string{TableReceipts, TableReceiptItems, TableBrands, TableUsers}

const (
	itemKey    = "item_id"
	itemParent = "receipt_id"
	identifier = "_id"
)

func textKey() *storage.PrimaryKeySpec {
	return &storage.PrimaryKeySpec{Name: identifier, Type: storage.TypeText}
}

func cols(pairs ...string) []storage.ColumnSpec {
	out := make([]storage.ColumnSpec, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, storage.ColumnSpec{Name: pairs[i], Type: pairs[i+1]})
	}
	return out
}

// ReceiptsSpec is the parent table. Column order is part of the stored schema.
func ReceiptsSpec() storage.TableSpec {
	return storage.TableSpec{
		Name:       TableReceipts,
		PrimaryKey: textKey(),
		Columns: cols(
			"bonusPointsEarned", storage.TypeReal,
			"bonusPointsEarnedReason", storage.TypeText,
			"createDate", storage.TypeText,
			"dateScanned", storage.TypeText,
			"finishedDate", storage.TypeText,
			"modifyDate", storage.TypeText,
			"purchaseDate", storage.TypeText,
			"pointsAwardedDate", storage.TypeText,
			"pointsEarned", storage.TypeReal,
			"purchasedItemCount", storage.TypeReal,
			"rewardsReceiptStatus", storage.TypeText,
			"totalSpent", storage.TypeReal,
			"userId", storage.TypeText,
		),
		Load: storage.LoadSpec{Conflict: storage.ConflictReplace},
	}
}

// ReceiptItemsSpec builds the child table from the inferred catalog.
//
// Catalog columns whose names collide with the fixed columns, or with an
// earlier catalog column when compared case-insensitively, cannot be stored
// and are returned as dropped. The returned catalog holds the kept columns in
// discovery order.
func ReceiptItemsSpec(cat *schema.Catalog) (spec storage.TableSpec, kept *schema.Catalog, dropped []string) {
	seen := map[string]bool{
		strings.ToLower(itemKey):    true,
		strings.ToLower(itemParent): true,
	}

	kept = schema.NewCatalog()
	columns := []storage.ColumnSpec{{Name: itemParent, Type: storage.TypeText}}
	for _, c := range cat.Columns() {
		k := strings.ToLower(strings.TrimSpace(c.Name))
		if k == "" || seen[k] {
			dropped = append(dropped, c.Name)
			continue
		}
		seen[k] = true
		kept.Observe(c.Name, c.Kind)
		columns = append(columns, storage.ColumnSpec{Name: c.Name, Type: c.Kind.String()})
	}

	spec = storage.TableSpec{
		Name:       TableReceiptItems,
		PrimaryKey: &storage.PrimaryKeySpec{Name: itemKey, Type: "serial"},
		Columns:    columns,
		ForeignKeys: []storage.ForeignKeySpec{
			{Columns: []string{itemParent}, RefTable: TableReceipts, RefColumns: []string{identifier}},
		},
		Load: storage.LoadSpec{Conflict: storage.ConflictReplace},
	}
	return spec, kept, dropped
}

func BrandsSpec() storage.TableSpec {
	return storage.TableSpec{
		Name:       TableBrands,
		PrimaryKey: textKey(),
		Columns: cols(
			"barcode", storage.TypeText,
			"brandCode", storage.TypeText,
			"category", storage.TypeText,
			"categoryCode", storage.TypeText,
			"cpg", storage.TypeText,
			"topBrand", storage.TypeInteger,
			"name", storage.TypeText,
		),
		Load: storage.LoadSpec{Conflict: storage.ConflictReplace},
	}
}

func UsersSpec() storage.TableSpec {
	return storage.TableSpec{
		Name:       TableUsers,
		PrimaryKey: textKey(),
		Columns: cols(
			"state", storage.TypeText,
			"createdDate", storage.TypeText,
			"lastLogin", storage.TypeText,
			"role", storage.TypeText,
			"active", storage.TypeInteger,
		),
		Load: storage.LoadSpec{Conflict: storage.ConflictReplace},
	}
}

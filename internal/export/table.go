// Package export renders stored values as a product comparison workbook.
package export

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cardscope/internal/model"
	"github.com/sells-group/cardscope/internal/store"
)

// ErrNoData is returned by BuildTable when none of the requested cells has an
// observation.
var ErrNoData = eris.New("export: no values for the requested products")

// unknownBank labels columns whose bank row is gone.
const unknownBank = "Unknown"

// Column is one product in the comparison.
type Column struct {
	ProductID int64
	Bank      string
	Product   string
}

// Header is the two-line column title.
func (c Column) Header() string {
	return c.Bank + "\n" + c.Product
}

// Row is one characteristic across all columns.
type Row struct {
	CharacteristicID int64
	Label            string
	Cells            []string
}

// Table is a characteristic by product grid. Missing cells hold model.Missing.
type Table struct {
	Columns []Column
	Rows    []Row
}

// Reader is the slice of the store BuildTable reads from.
type Reader interface {
	GetBanks(ctx context.Context, ids []int64) ([]model.Bank, error)
	GetProducts(ctx context.Context, ids []int64) ([]model.Product, error)
	GetCharacteristics(ctx context.Context, ids []int64) ([]model.Characteristic, error)
	ListValues(ctx context.Context, filter store.ValueFilter) ([]model.Value, error)
}

// BuildTable assembles the latest value per (product, characteristic) for
// userID. Columns follow productIDs and rows follow charIDs.
func BuildTable(ctx context.Context, r Reader, userID int64, productIDs, charIDs []int64) (*Table, error) {
	products, err := r.GetProducts(ctx, productIDs)
	if err != nil {
		return nil, eris.Wrap(err, "export: load products")
	}
	chars, err := r.GetCharacteristics(ctx, charIDs)
	if err != nil {
		return nil, eris.Wrap(err, "export: load characteristics")
	}
	banks, err := r.GetBanks(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "export: load banks")
	}
	values, err := r.ListValues(ctx, store.ValueFilter{
		UserID:            userID,
		ProductIDs:        productIDs,
		CharacteristicIDs: charIDs,
	})
	if err != nil {
		return nil, eris.Wrap(err, "export: load values")
	}
	if len(values) == 0 {
		return nil, ErrNoData
	}

	bankNames := make(map[int64]string, len(banks))
	for _, b := range banks {
		bankNames[b.ID] = b.Name
	}

	type cell struct{ product, char int64 }
	latest := make(map[cell]string, len(values))
	for _, v := range values {
		// Values arrive oldest first.
		latest[cell{v.ProductID, v.CharacteristicID}] = v.Value
	}

	t := &Table{Columns: make([]Column, len(products))}
	for i, p := range products {
		bank, ok := bankNames[p.BankID]
		if !ok {
			bank = unknownBank
		}
		t.Columns[i] = Column{ProductID: p.ID, Bank: bank, Product: p.Name}
	}

	for _, c := range chars {
		row := Row{CharacteristicID: c.ID, Label: model.DisplayName(c.Name), Cells: make([]string, len(products))}
		for i, p := range products {
			v, ok := latest[cell{p.ID, c.ID}]
			if !ok {
				v = model.Missing
			}
			row.Cells[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

package xlsx

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ReadRows loads every row of the first worksheet in path. Trailing empty
// cells and rows are not returned. Intended for small documents.
func ReadRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return f.GetRows(f.GetSheetName(0))
}

// EachRow calls fn for every row of the first worksheet in path, streaming the
// sheet rather than loading it. index is zero-based. Iteration stops at the
// first error fn returns.
func EachRow(path string, fn func(index int, cells []string) error) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.Rows(f.GetSheetName(0))
	if err != nil {
		return err
	}
	defer rows.Close()

	for i := 0; rows.Next(); i++ {
		cells, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
		if err := fn(i, cells); err != nil {
			return err
		}
	}
	return rows.Error()
}

// CountRows returns the number of rows in the first worksheet of path.
func CountRows(path string) (int, error) {
	n := 0
	err := EachRow(path, func(int, []string) error {
		n++
		return nil
	})
	return n, err
}

package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/okian/crewboard/internal/domain/dataset"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF} //nolint:gochecknoglobals // constant byte sequence

// ParseCSV reads a spreadsheet CSV export. The first row is the header.
// Short rows are padded with missing values; rows longer than the header
// are a *FormatError. Errors from r itself are returned unchanged.
func ParseCSV(r io.Reader) (dataset.Dataset, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return dataset.Dataset{}, &FormatError{Line: 1, Err: ErrEmptyDocument}
	}
	if err != nil {
		return dataset.Dataset{}, formatError(err)
	}

	var rows [][]string
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return dataset.Dataset{}, formatError(err)
		}
		if len(row) > len(header) {
			line, _ := cr.FieldPos(0)
			return dataset.Dataset{}, &FormatError{
				Line: line,
				Err:  fmt.Errorf("%w: %d fields, header has %d", ErrRowTooLong, len(row), len(header)),
			}
		}
		rows = append(rows, row)
	}
	return dataset.FromRows(header, rows), nil
}

func formatError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &FormatError{Line: pe.Line, Err: pe.Err}
	}
	return err
}

// Package columnar encodes tables as Snappy-compressed Parquet files.
package columnar

import (
	"bytes"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/parquet-go/parquet-go"

	"github.com/lakeshift/lakeshift/internal/table"
)

const ContentType = "application/x-parquet"

type EncodeResult struct {
	Data     []byte
	RowCount int64
	Columns  []string
}

// Encode writes t as a single Parquet file. The row type is assembled at
// runtime with one optional field per column so the file schema keeps the
// table's column order.
func Encode(t table.Table) (EncodeResult, error) {
	if len(t.Columns) == 0 {
		return EncodeResult{}, fmt.Errorf("table has no columns")
	}
	if err := t.Validate(); err != nil {
		return EncodeResult{}, fmt.Errorf("validate table: %w", err)
	}

	rowType, err := rowTypeOf(t.Columns)
	if err != nil {
		return EncodeResult{}, err
	}
	schema := parquet.SchemaOf(reflect.New(rowType).Interface())

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewWriter(buf, schema, parquet.Compression(&parquet.Snappy))

	rows := t.NumRows()
	for r := 0; r < rows; r++ {
		row := reflect.New(rowType).Elem()
		for c, column := range t.Columns {
			setField(row.Field(c), column.Values[r])
		}
		if err := writer.Write(row.Interface()); err != nil {
			return EncodeResult{}, fmt.Errorf("write parquet row %d: %w", r, err)
		}
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return EncodeResult{
		Data:     buf.Bytes(),
		RowCount: int64(rows),
		Columns:  t.Names(),
	}, nil
}

var (
	stringType  = reflect.TypeOf("")
	int64Type   = reflect.TypeOf(int64(0))
	float64Type = reflect.TypeOf(float64(0))
	boolType    = reflect.TypeOf(false)
	bytesType   = reflect.TypeOf([]byte(nil))
	timeType    = reflect.TypeOf(time.Time{})
)

func rowTypeOf(columns []table.Column) (reflect.Type, error) {
	fields := make([]reflect.StructField, len(columns))
	for i, column := range columns {
		if err := validateColumnName(column.Name); err != nil {
			return nil, err
		}
		var elem reflect.Type
		switch column.Kind {
		case table.String:
			elem = stringType
		case table.Int64:
			elem = int64Type
		case table.Float64:
			elem = float64Type
		case table.Bool:
			elem = boolType
		case table.Bytes:
			elem = bytesType
		case table.Timestamp:
			elem = timeType
		default:
			return nil, fmt.Errorf("column %q: unsupported kind %s", column.Name, column.Kind)
		}
		fields[i] = reflect.StructField{
			Name: "C" + strconv.Itoa(i),
			Type: reflect.PointerTo(elem),
			Tag:  reflect.StructTag("parquet:" + strconv.Quote(column.Name)),
		}
	}
	return reflect.StructOf(fields), nil
}

// validateColumnName rejects names the struct tag grammar cannot carry.
func validateColumnName(name string) error {
	if name == "" || name == "-" || strings.Contains(name, ",") || !utf8.ValidString(name) {
		return fmt.Errorf("invalid column name for parquet schema: %q", name)
	}
	return nil
}

func setField(field reflect.Value, value any) {
	if value == nil {
		return
	}
	if ts, ok := value.(time.Time); ok {
		value = ts.UTC()
	}
	v := reflect.ValueOf(value)
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)
	field.Set(ptr)
}

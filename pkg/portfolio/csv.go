package portfolio

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"roboadvisor/pkg/models"
)

// CSV 必需列与可选列
var (
	RequiredColumns = []string{"name", "purchase_date", "quantity", "purchase_price"}
	OptionalColumns = []string{"isin", "ticker", "sector", "region", "asset_class"}
)

// ErrEmptyCSV 文件为空或没有表头
var ErrEmptyCSV = errors.New("csv file is empty or has no header")

// MissingColumnsError 表头缺少必需列
type MissingColumnsError struct {
	Missing []string
	Found   []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("missing columns in csv: %s. required: %s. found: %s",
		strings.Join(e.Missing, ", "), strings.Join(RequiredColumns, ", "), strings.Join(e.Found, ", "))
}

// ImportRow 一行通过校验的持仓，Row 从表头=1开始计数
type ImportRow struct {
	Row     int
	Holding *models.PortfolioHolding
}

// ImportResult CSV解析结果
type ImportResult struct {
	Rows   []ImportRow
	Errors []string
}

// CSVTemplate 下载用模板，分号分隔
const CSVTemplate = "name;purchase_date;quantity;purchase_price;isin;ticker\n" +
	"Apple Inc.;2024-01-15;10;150.50;US0378331005;AAPL\n" +
	"Microsoft Corporation;2024-02-20;5;380.25;US5949181045;MSFT\n" +
	"BASF;2024-01-01;11.532;77.0855;DE000BASF111;\n"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseCSV 解析持仓CSV；表头问题返回错误，行级问题收集到 Errors
func ParseCSV(userID uint, data []byte) (*ImportResult, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	firstLine, _, _ := bytes.Cut(data, []byte("\n"))
	delimiter := ','
	if bytes.ContainsRune(firstLine, ';') {
		delimiter = ';'
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyCSV
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columns := make(map[string]int, len(header))
	found := make([]string, 0, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := columns[name]; !dup {
			columns[name] = i
		}
		found = append(found, name)
	}
	if len(found) == 0 {
		return nil, ErrEmptyCSV
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{Missing: missing, Found: found}
	}

	result := &ImportResult{Errors: []string{}}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", parseErr.StartLine, parseErr.Err))
				continue
			}
			return nil, fmt.Errorf("read csv: %w", err)
		}
		// 行号按文件行计算，表头为第1行
		rowNum, _ := reader.FieldPos(0)
		if isBlankRecord(record) {
			continue
		}

		field := func(name string) string {
			i, ok := columns[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		holding, err := parseRow(userID, field)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", rowNum, err))
			continue
		}
		result.Rows = append(result.Rows, ImportRow{Row: rowNum, Holding: holding})
	}
	return result, nil
}

func parseRow(userID uint, field func(string) string) (*models.PortfolioHolding, error) {
	name := field("name")
	if name == "" {
		return nil, ErrNameRequired
	}
	if field("purchase_date") == "" {
		return nil, ErrPurchaseDateRequired
	}
	if field("quantity") == "" {
		return nil, errors.New("quantity is required")
	}
	if field("purchase_price") == "" {
		return nil, ErrPurchasePriceRequired
	}
	if field("isin") == "" && field("ticker") == "" {
		return nil, ErrIdentifierRequired
	}

	quantity, err := ParseQuantity(field("quantity"))
	if err != nil {
		return nil, err
	}

	return BuildHolding(userID, HoldingInput{
		ISIN:          field("isin"),
		Ticker:        field("ticker"),
		Name:          name,
		PurchaseDate:  field("purchase_date"),
		Quantity:      quantity,
		PurchasePrice: strings.ReplaceAll(field("purchase_price"), ",", "."),
		Sector:        field("sector"),
		Region:        field("region"),
		AssetClass:    field("asset_class"),
	})
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const bom = "\uFEFF"

type column struct {
	key    string
	header string
	format func(interface{}) string
}

var (
	financialColumns = []column{
		{key: "month", header: "Mes"},
		{key: "revenue", header: "Receita (R$)", format: formatCurrency},
		{key: "expenses", header: "Despesas (R$)", format: formatCurrency},
		{key: "balance", header: "Saldo (R$)", format: formatCurrency},
		{key: "job_count", header: "Jobs"},
	}
	performanceColumns = []column{
		{key: "group_label", header: "Agrupamento"},
		{key: "job_count", header: "Qtd Jobs"},
		{key: "total_revenue", header: "Receita Total (R$)", format: formatCurrency},
		{key: "avg_margin", header: "Margem Media (%)"},
		{key: "avg_health_score", header: "Health Score Medio"},
		{key: "completed_count", header: "Jobs Finalizados"},
		{key: "cancelled_count", header: "Jobs Cancelados"},
	}
	teamColumns = []column{
		{key: "full_name", header: "Nome"},
		{key: "person_type", header: "Tipo"},
		{key: "job_count", header: "Qtd Jobs"},
		{key: "allocated_days", header: "Dias Alocados"},
		{key: "utilization_pct", header: "Utilizacao (%)"},
		{key: "conflict_count", header: "Conflitos"},
	}

	exportConfig = map[string]struct {
		columns []column
		label   string
	}{
		TypeFinancialMonthly: {financialColumns, "financeiro"},
		TypePerformance:      {performanceColumns, "performance"},
		TypeTeamUtilization:  {teamColumns, "equipe"},
	}
)

// formatCurrency renders a number with two decimals and a decimal comma ("1234,56").
func formatCurrency(v interface{}) string {
	var f float64
	switch n := v.(type) {
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return "0,00"
		}
	case float64:
		f = n
	case string:
		var err error
		if f, err = strconv.ParseFloat(n, 64); err != nil {
			return "0,00"
		}
	case nil:
		f = 0
	default:
		return "0,00"
	}
	return strings.Replace(strconv.FormatFloat(f, 'f', 2, 64), ".", ",", 1)
}

// cell renders a value as CSV cell text. Nil renders empty.
func cell(v interface{}) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// WriteCSV writes a UTF-8 BOM followed by `header` and `records` as comma separated,
// CRLF terminated lines. encoding/csv quotes the cells that need it.
func WriteCSV(w io.Writer, header []string, records [][]string) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return errors.Wrap(err, "writing csv bom")
	}
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(header); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	return errors.Wrap(cw.WriteAll(records), "writing csv records")
}

// generateCSV renders the `columns` of `rows`, formatting the cells that have a formatter.
func generateCSV(rows []map[string]interface{}, columns []column) ([]byte, error) {
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.header
	}
	records := make([][]string, 0, len(rows))
	for _, row := range rows {
		rec := make([]string, len(columns))
		for i, c := range columns {
			var v interface{} = row[c.key]
			if c.format != nil {
				v = c.format(v)
			}
			rec[i] = cell(v)
		}
		records = append(records, rec)
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, header, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// extractRows returns the exportable rows of a report result: `by_month` for the financial
// report, the result itself for the others.
func extractRows(reportType string, result json.RawMessage) ([]map[string]interface{}, error) {
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(result))
	dec.UseNumber()

	if reportType == TypeFinancialMonthly {
		var v struct {
			ByMonth []map[string]interface{} `json:"by_month"`
		}
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		return v.ByMonth, nil
	}

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, nil
	}
	rows := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			rows = append(rows, m)
		}
	}
	return rows, nil
}

package pnl

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Fields 把报告展开为列名到取值的映射。
func (e Explain) Fields() map[string]string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	out := map[string]string{
		"report_id":           e.ReportID,
		"contract_id":         e.ContractID,
		"from":                e.From.Format(time.RFC3339),
		"to":                  e.To.Format(time.RFC3339),
		"pairs":               strconv.Itoa(e.Pairs),
		"units":               f(e.Units),
		"execution":           f(e.Execution),
		"fee":                 f(e.Fee),
		"total":               f(e.Total),
		"net_hedge":           f(e.NetHedge()),
		"hedging_error_ratio": "",
		"price1_theoretical":  f(e.Price1Theoretical),
		"price1_deviation":    f(e.Price1Deviation),
	}
	if e.HedgingError != nil {
		out["hedging_error_ratio"] = f(*e.HedgingError)
	}
	for k, v := range e.GreekTerms() {
		out["pl_"+k] = f(v)
	}
	return out
}

// CSVWriter 逐行写出归因报告，首行是按字母序排列的列名。
type CSVWriter struct {
	mu     sync.Mutex
	w      *csv.Writer
	header []string
}

// NewCSVWriter 创建写出器。
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// Write 写出一份报告，首次调用时先写表头。
func (c *CSVWriter) Write(e Explain) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fields := e.Fields()
	if c.header == nil {
		c.header = make([]string, 0, len(fields))
		for k := range fields {
			c.header = append(c.header, k)
		}
		sort.Strings(c.header)
		if err := c.w.Write(c.header); err != nil {
			return err
		}
	}
	row := make([]string, len(c.header))
	for i, k := range c.header {
		row[i] = fields[k]
	}
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

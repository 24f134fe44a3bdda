/*
Copyright 2025 Shilingi Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package shilingi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shilingihq/shilingi/internal/apierror"
	"github.com/shilingihq/shilingi/model"
)

const (
	fileTypeCSV  = "text/csv"
	fileTypeJSON = "application/json"
	fileTypePDF  = "application/pdf"
	fileTypeOFX  = "application/x-ofx"
)

// dateLayouts are tried in order when a statement row carries no explicit
// layout. CSV imports use the mapping's layout instead.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"02/01/2006",
	"02/01/06",
	"02-01-2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2, 2006",
}

// ImportStatement parses an uploaded bank statement and stores its rows as
// unmatched transactions in one batch. CSV uploads require a column mapping;
// JSON uploads use canonical field names; PDF and OFX derive columns from
// the format itself. Rows that fail validation are reported per row on the
// returned import record without aborting the batch. An upload that yields
// no valid rows at all is rejected.
func (s *Shilingi) ImportStatement(ctx context.Context, orgID string, reader io.Reader, filename, mappingID string) (*model.StatementImport, error) {
	ctx, span := otel.Tracer("shilingi.import").Start(ctx, "ImportStatement")
	defer span.End()

	if orgID == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "org id is required", nil)
	}

	importID := model.GenerateUUIDWithSuffix("imp")
	span.SetAttributes(attribute.String("import.id", importID))

	tempFile, err := s.createAndPopulateTempFile(filename, reader)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "error buffering upload", err)
	}
	defer s.cleanupTempFile(tempFile)

	fileType, err := s.detectFileTypeFromTempFile(tempFile, filename)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "could not detect file type", err)
	}
	span.SetAttributes(attribute.String("import.file_type", fileType))

	var mapping *model.ColumnMapping
	if fileType == fileTypeCSV {
		if mappingID == "" {
			return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "CSV import requires a column mapping", nil)
		}
		mapping, err = s.GetColumnMapping(ctx, orgID, mappingID)
		if err != nil {
			return nil, err
		}
	}

	txns, rowErrors, err := s.parseStatement(tempFile, fileType, mapping, orgID, importID)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "statement contains no valid transactions", rowErrors)
	}

	imp := &model.StatementImport{
		ImportID:   importID,
		OrgID:      orgID,
		Filename:   filepath.Base(filename),
		MappingID:  mappingID,
		TotalRows:  len(txns) + len(rowErrors),
		FailedRows: len(rowErrors),
		RowErrors:  rowErrors,
		CreatedAt:  time.Now(),
	}
	if err := s.datasource.RecordStatementImport(ctx, imp, txns); err != nil {
		return nil, err
	}
	return imp, nil
}

func (s *Shilingi) parseStatement(tempFile *os.File, fileType string, mapping *model.ColumnMapping, orgID, importID string) ([]*model.BankTransaction, []model.RowError, error) {
	switch fileType {
	case fileTypeCSV:
		return parseCSVStatement(tempFile, mapping, orgID, importID)
	case fileTypeJSON:
		return parseJSONStatement(tempFile, orgID, importID)
	case fileTypePDF:
		return parsePDFStatement(tempFile.Name(), orgID, importID)
	case fileTypeOFX:
		return parseOFXStatement(tempFile, orgID, importID)
	default:
		return nil, nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unsupported file type: %s", fileType), nil)
	}
}

func (s *Shilingi) createAndPopulateTempFile(filename string, reader io.Reader) (*os.File, error) {
	tempDir := filepath.Join(os.TempDir(), "shilingi_uploads")
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("error creating temporary directory: %w", err)
	}

	prefix := fmt.Sprintf("%s_", filepath.Base(filename))
	tempFile, err := os.CreateTemp(tempDir, prefix)
	if err != nil {
		return nil, fmt.Errorf("error creating temporary file: %w", err)
	}

	if _, err := io.Copy(tempFile, reader); err != nil {
		return nil, fmt.Errorf("error copying upload data: %w", err)
	}
	if _, err := tempFile.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("error seeking temporary file: %w", err)
	}
	return tempFile, nil
}

func (s *Shilingi) cleanupTempFile(file *os.File) {
	if file != nil {
		filename := file.Name()
		file.Close()
		if err := os.Remove(filename); err != nil {
			log.Printf("Error removing temporary file %s: %v", filename, err)
		}
	}
}

func (s *Shilingi) detectFileTypeFromTempFile(tempFile *os.File, filename string) (string, error) {
	header := make([]byte, 512)
	n, err := tempFile.Read(header)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("error reading file header: %w", err)
	}
	header = header[:n]

	fileType, err := detectFileType(header, filename)
	if err != nil {
		return "", err
	}

	if _, err := tempFile.Seek(0, 0); err != nil {
		return "", fmt.Errorf("error seeking temporary file: %w", err)
	}
	return fileType, nil
}

// detectFileType resolves the statement format from the filename extension
// first, then falls back to sniffing the content.
func detectFileType(data []byte, filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return fileTypeCSV, nil
	case ".json":
		return fileTypeJSON, nil
	case ".pdf":
		return fileTypePDF, nil
	case ".ofx", ".qfx":
		return fileTypeOFX, nil
	}

	if bytes.HasPrefix(data, []byte("%PDF")) {
		return fileTypePDF, nil
	}
	if looksLikeOFX(data) {
		return fileTypeOFX, nil
	}

	mimeType := http.DetectContentType(data)
	if strings.HasPrefix(mimeType, "text/plain") {
		if looksLikeCSV(data) {
			return fileTypeCSV, nil
		}
		if json.Valid(bytes.TrimSpace(data)) {
			return fileTypeJSON, nil
		}
	}
	if strings.HasPrefix(mimeType, "application/pdf") {
		return fileTypePDF, nil
	}
	return "", fmt.Errorf("unrecognized statement format for %q", filename)
}

func looksLikeOFX(data []byte) bool {
	upper := bytes.ToUpper(data)
	return bytes.Contains(upper, []byte("OFXHEADER")) || bytes.Contains(upper, []byte("<OFX>"))
}

// looksLikeCSV requires at least two lines with a consistent field count.
func looksLikeCSV(data []byte) bool {
	lines := bytes.Split(data, []byte("\n"))
	if len(lines) < 2 {
		return false
	}
	fields := bytes.Count(lines[0], []byte(",")) + 1
	for _, line := range lines[1 : len(lines)-1] {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if bytes.Count(line, []byte(","))+1 != fields {
			return false
		}
	}
	return fields > 1
}

// parseCSVStatement reads a statement with a header row, resolving columns
// through the org's mapping. Header names are matched case-insensitively.
// Row numbers in errors are 1-based and count the header.
func parseCSVStatement(reader io.Reader, mapping *model.ColumnMapping, orgID, importID string) ([]*model.BankTransaction, []model.RowError, error) {
	csvReader := csv.NewReader(bufio.NewReader(reader))
	csvReader.TrimLeadingSpace = true

	headers, err := csvReader.Read()
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInvalidInput, "error reading CSV header", err)
	}

	// column index -> canonical field
	fieldIndex := make(map[int]model.TargetField)
	for i, h := range headers {
		for col, field := range mapping.Columns {
			if strings.EqualFold(strings.TrimSpace(h), col) {
				fieldIndex[i] = field
				break
			}
		}
	}
	for col, field := range mapping.Columns {
		if field == model.FieldIgnored {
			continue
		}
		found := false
		for _, mapped := range fieldIndex {
			if mapped == field {
				found = true
				break
			}
		}
		if !found {
			return nil, nil, apierror.NewAPIError(apierror.ErrInvalidInput,
				fmt.Sprintf("statement has no column %q for field %q", col, field), nil)
		}
	}

	layout := mapping.DateLayout

	var txns []*model.BankTransaction
	var rowErrors []model.RowError
	rowNum := 1
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			rowErrors = append(rowErrors, model.RowError{Row: rowNum, Err: err.Error()})
			continue
		}

		raw := rawRow{}
		for i, value := range record {
			field, ok := fieldIndex[i]
			if !ok {
				continue
			}
			raw.set(field, value)
		}

		txn, err := raw.toTransaction(orgID, importID, layout)
		if err != nil {
			rowErrors = append(rowErrors, model.RowError{Row: rowNum, Err: err.Error()})
			continue
		}
		txns = append(txns, txn)
	}
	return txns, rowErrors, nil
}

// jsonStatementRow is the canonical row shape for JSON uploads. Amounts are
// strings to avoid float precision loss in transit.
type jsonStatementRow struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Debit       string `json:"debit,omitempty"`
	Credit      string `json:"credit,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Balance     string `json:"balance,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

func parseJSONStatement(reader io.Reader, orgID, importID string) ([]*model.BankTransaction, []model.RowError, error) {
	var rows []jsonStatementRow
	if err := json.NewDecoder(bufio.NewReader(reader)).Decode(&rows); err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInvalidInput, "error decoding JSON statement", err)
	}

	var txns []*model.BankTransaction
	var rowErrors []model.RowError
	for i, row := range rows {
		raw := rawRow{
			date:        row.Date,
			description: row.Description,
			debit:       row.Debit,
			credit:      row.Credit,
			amount:      row.Amount,
			balance:     row.Balance,
			reference:   row.Reference,
		}
		txn, err := raw.toTransaction(orgID, importID, "")
		if err != nil {
			rowErrors = append(rowErrors, model.RowError{Row: i + 1, Err: err.Error()})
			continue
		}
		txns = append(txns, txn)
	}
	return txns, rowErrors, nil
}

// parsePDFStatement extracts text rows from a PDF and keeps the lines that
// look like transactions: a leading date followed by a description and one
// or two trailing amounts (amount, then running balance when present).
func parsePDFStatement(path, orgID, importID string) ([]*model.BankTransaction, []model.RowError, error) {
	lines, err := extractPDFRows(path)
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInvalidInput, "error extracting PDF text", err)
	}

	var txns []*model.BankTransaction
	var rowErrors []model.RowError
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}

		date, rest, ok := leadingDate(fields)
		if !ok {
			continue
		}

		// Trailing numeric tokens are the money columns.
		amounts, descEnd := trailingAmounts(rest)
		if len(amounts) == 0 {
			rowErrors = append(rowErrors, model.RowError{Row: i + 1, Err: "no amount column found"})
			continue
		}

		raw := rawRow{
			description: strings.Join(rest[:descEnd], " "),
			amount:      amounts[0],
		}
		if len(amounts) > 1 {
			raw.balance = amounts[len(amounts)-1]
		}
		txn, err := raw.toParsedTransaction(orgID, importID, date)
		if err != nil {
			rowErrors = append(rowErrors, model.RowError{Row: i + 1, Err: err.Error()})
			continue
		}
		txns = append(txns, txn)
	}
	return txns, rowErrors, nil
}

func extractPDFRows(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			var parts []string
			for _, word := range row.Content {
				parts = append(parts, word.S)
			}
			line := strings.TrimSpace(strings.Join(parts, " "))
			if line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines, nil
}

// leadingDate consumes one or two leading tokens as a transaction date.
func leadingDate(fields []string) (time.Time, []string, bool) {
	if t, err := parseStatementDate(fields[0], ""); err == nil {
		return t, fields[1:], true
	}
	if len(fields) > 2 {
		if t, err := parseStatementDate(fields[0]+" "+fields[1]+" "+fields[2], ""); err == nil {
			return t, fields[3:], true
		}
	}
	return time.Time{}, nil, false
}

// trailingAmounts walks backwards collecting parseable money tokens and
// returns them in line order plus the index where the description ends.
func trailingAmounts(fields []string) ([]string, int) {
	end := len(fields)
	for end > 1 {
		if _, err := parseStatementAmount(fields[end-1]); err != nil {
			break
		}
		end--
	}
	amounts := make([]string, 0, len(fields)-end)
	amounts = append(amounts, fields[end:]...)
	return amounts, end
}

// parseOFXStatement scans OFX 1.x SGML or 2.x XML for STMTTRN blocks. Both
// dialects use the same tag vocabulary; SGML merely omits closing tags, so
// a line-oriented tag scanner covers both.
func parseOFXStatement(reader io.Reader, orgID, importID string) ([]*model.BankTransaction, []model.RowError, error) {
	scanner := bufio.NewScanner(bufio.NewReader(reader))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var txns []*model.BankTransaction
	var rowErrors []model.RowError
	var current map[string]string
	txnNum := 0

	flush := func() {
		if current == nil {
			return
		}
		txnNum++
		txn, err := ofxTransaction(current, orgID, importID)
		if err != nil {
			rowErrors = append(rowErrors, model.RowError{Row: txnNum, Err: err.Error()})
		} else {
			txns = append(txns, txn)
		}
		current = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		tag, value := ofxTag(line)
		switch tag {
		case "STMTTRN":
			flush()
			current = make(map[string]string)
		case "/STMTTRN":
			flush()
		case "TRNAMT", "DTPOSTED", "NAME", "MEMO", "FITID", "CHECKNUM", "TRNTYPE":
			if current != nil {
				current[tag] = value
			}
		}
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInvalidInput, "error reading OFX statement", err)
	}
	return txns, rowErrors, nil
}

// ofxTag splits "<TAG>value" (SGML) or "<TAG>value</TAG>" (XML) into tag
// and value. Lines without a tag return "".
func ofxTag(line string) (string, string) {
	if !strings.HasPrefix(line, "<") {
		return "", ""
	}
	gt := strings.Index(line, ">")
	if gt < 0 {
		return "", ""
	}
	tag := strings.ToUpper(line[1:gt])
	value := line[gt+1:]
	if end := strings.Index(value, "</"); end >= 0 {
		value = value[:end]
	}
	return tag, strings.TrimSpace(value)
}

func ofxTransaction(tags map[string]string, orgID, importID string) (*model.BankTransaction, error) {
	posted, ok := tags["DTPOSTED"]
	if !ok || len(posted) < 8 {
		return nil, fmt.Errorf("missing or malformed DTPOSTED")
	}
	date, err := time.Parse("20060102", posted[:8])
	if err != nil {
		return nil, fmt.Errorf("invalid DTPOSTED %q", posted)
	}

	description := strings.TrimSpace(strings.Join(nonEmpty(tags["NAME"], tags["MEMO"]), " "))
	reference := tags["FITID"]
	if reference == "" {
		reference = tags["CHECKNUM"]
	}

	raw := rawRow{
		description: description,
		amount:      tags["TRNAMT"],
		reference:   reference,
	}
	return raw.toParsedTransaction(orgID, importID, date)
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

// rawRow is the format-independent shape a parsed row passes through before
// validation. All values are raw strings from the source document.
type rawRow struct {
	date        string
	description string
	debit       string
	credit      string
	amount      string
	balance     string
	reference   string
}

func (r *rawRow) set(field model.TargetField, value string) {
	value = strings.TrimSpace(value)
	switch field {
	case model.FieldDate:
		r.date = value
	case model.FieldDescription:
		r.description = value
	case model.FieldDebit:
		r.debit = value
	case model.FieldCredit:
		r.credit = value
	case model.FieldAmount:
		r.amount = value
	case model.FieldBalance:
		r.balance = value
	case model.FieldReference:
		r.reference = value
	}
}

func (r *rawRow) toTransaction(orgID, importID, layout string) (*model.BankTransaction, error) {
	date, err := parseStatementDate(r.date, layout)
	if err != nil {
		return nil, err
	}
	return r.toParsedTransaction(orgID, importID, date)
}

// toParsedTransaction applies the debit/credit rules: a signed amount
// column maps negatives to debits and positives to credits; separate
// debit/credit columns must fill exactly one side.
func (r *rawRow) toParsedTransaction(orgID, importID string, date time.Time) (*model.BankTransaction, error) {
	txn := &model.BankTransaction{
		TransactionID: model.GenerateUUIDWithSuffix("txn"),
		OrgID:         orgID,
		ImportID:      importID,
		Date:          date,
		Description:   r.description,
		Reference:     r.reference,
		Status:        model.StatusUnmatched,
		CreatedAt:     time.Now(),
	}

	if r.amount != "" {
		amount, err := parseStatementAmount(r.amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q", r.amount)
		}
		if amount.IsZero() {
			return nil, fmt.Errorf("zero amount")
		}
		abs := amount.Abs()
		if amount.Sign() < 0 {
			txn.Debit = &abs
		} else {
			txn.Credit = &abs
		}
	} else {
		if r.debit != "" && r.debit != "0" {
			debit, err := parseStatementAmount(r.debit)
			if err != nil {
				return nil, fmt.Errorf("invalid debit %q", r.debit)
			}
			if !debit.IsZero() {
				abs := debit.Abs()
				txn.Debit = &abs
			}
		}
		if r.credit != "" && r.credit != "0" {
			credit, err := parseStatementAmount(r.credit)
			if err != nil {
				return nil, fmt.Errorf("invalid credit %q", r.credit)
			}
			if !credit.IsZero() {
				abs := credit.Abs()
				txn.Credit = &abs
			}
		}
	}

	if r.balance != "" {
		balance, err := parseStatementAmount(r.balance)
		if err != nil {
			return nil, fmt.Errorf("invalid balance %q", r.balance)
		}
		txn.Balance = &balance
	}

	if err := txn.Validate(); err != nil {
		return nil, err
	}
	return txn, nil
}

// parseStatementAmount strips currency symbols, thousands separators and
// parenthesized-negative notation before decimal parsing.
func parseStatementAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	for _, sym := range []string{"KES", "KSh", "Ksh", "USD", "$", "€", "£", ",", " ", " "} {
		s = strings.ReplaceAll(s, sym, "")
	}
	if s == "" || s == "-" {
		return decimal.Decimal{}, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

func parseStatementDate(s, layout string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if layout != "" {
		return time.Parse(layout, s)
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

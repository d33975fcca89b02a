// Package report exports a crawl inventory: one row per frontier
// link with its visit state, retry count, and scrape outcome. The
// format follows the destination extension, .csv or .xlsx.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/msneto/crawler-to-md/internal/storage"
)

var columns = []string{
	"url", "visited", "retry_count", "scraped",
	"title", "content_bytes", "error_type",
}

type row struct {
	url          string
	visited      bool
	retryCount   int
	scraped      bool
	title        string
	contentBytes int
	errorType    string
}

// Write exports the crawl inventory to path. The extension picks the
// format: .csv or .xlsx.
func Write(store storage.Store, path string) error {
	rows, err := collect(store)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return writeCSV(rows, path)
	case ".xlsx":
		return writeXLSX(store, rows, path)
	default:
		return fmt.Errorf("unsupported report format: %s", filepath.Ext(path))
	}
}

// collect joins the frontier with the page outcomes.
func collect(store storage.Store) ([]row, error) {
	type pageInfo struct {
		scraped      bool
		title        string
		contentBytes int
		errorType    string
	}
	pages := make(map[string]pageInfo)

	cur := store.Pages()
	for cur.Next() {
		page := cur.Page()
		info := pageInfo{scraped: page.Content != nil}
		if page.Content != nil {
			info.contentBytes = len(*page.Content)
		}

		var meta map[string]any
		if err := json.Unmarshal([]byte(page.Metadata), &meta); err == nil {
			if title, ok := meta["title"].(string); ok {
				info.title = title
			}
			if errorType, ok := meta["error_type"].(string); ok {
				info.errorType = errorType
			}
		}
		pages[page.URL] = info
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pages: %w", err)
	}

	links, err := store.Links()
	if err != nil {
		return nil, fmt.Errorf("failed to read links: %w", err)
	}

	rows := make([]row, 0, len(links))
	for _, link := range links {
		info := pages[link.URL]
		rows = append(rows, row{
			url:          link.URL,
			visited:      link.Visited,
			retryCount:   link.RetryCount,
			scraped:      info.scraped,
			title:        info.title,
			contentBytes: info.contentBytes,
			errorType:    info.errorType,
		})
	}
	return rows, nil
}

func (r row) values() []string {
	return []string{
		r.url,
		formatBool(r.visited),
		strconv.Itoa(r.retryCount),
		formatBool(r.scraped),
		r.title,
		strconv.Itoa(r.contentBytes),
		r.errorType,
	}
}

func writeCSV(rows []row, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	// UTF-8 BOM for Excel compatibility
	if _, err := file.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		if err := writer.Write(r.values()); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeXLSX(store storage.Store, rows []row, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Crawl"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"00C853"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, col)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		width := float64(len(col) + 5)
		if width < 15 {
			width = 15
		}
		f.SetColWidth(sheetName, colName, colName, width)
	}
	// URLs need the extra room
	f.SetColWidth(sheetName, "A", "A", 60)

	for rowIdx, r := range rows {
		for i, value := range r.values() {
			cell, _ := excelize.CoordinatesToCellName(i+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	filterRange := fmt.Sprintf("A1:%s%d", lastCol, len(rows)+1)
	f.AutoFilter(sheetName, filterRange, nil)

	f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	if err := addSummarySheet(f, store); err != nil {
		return err
	}

	return f.SaveAs(path)
}

// addSummarySheet writes the aggregate crawl counts next to the
// per-link inventory.
func addSummarySheet(f *excelize.File, store storage.Store) error {
	stats, err := store.Stats()
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	const sheetName = "Summary"
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	entries := [][2]string{
		{"Total links", strconv.Itoa(stats.TotalLinks)},
		{"Visited links", strconv.Itoa(stats.VisitedLinks)},
		{"Pending links", strconv.Itoa(stats.PendingLinks)},
		{"Total pages", strconv.Itoa(stats.TotalPages)},
		{"Failed pages", strconv.Itoa(stats.FailedPages)},
		{"Generated", time.Now().Format(time.RFC3339)},
	}
	for i, entry := range entries {
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", i+1), entry[0])
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", i+1), entry[1])
	}
	f.SetColWidth(sheetName, "A", "A", 20)
	f.SetColWidth(sheetName, "B", "B", 30)
	return nil
}

func formatBool(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

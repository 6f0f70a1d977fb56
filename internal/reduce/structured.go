package reduce

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxTables    = 3
	maxTableRows = 10
	maxLists     = 5
)

// Structured holds the tabular and list content of a page.
type Structured struct {
	Tables [][][]string `json:"tables,omitempty"`
	Lists  [][]string   `json:"lists,omitempty"`
}

// Empty reports whether nothing was found.
func (s Structured) Empty() bool {
	return len(s.Tables) == 0 && len(s.Lists) == 0
}

// ExtractStructured returns cell text from the first tables and item text
// from the first lists on the page.
func ExtractStructured(raw string) Structured {
	var s Structured
	doc, err := parse(raw)
	if err != nil {
		return s
	}

	doc.Find("table").EachWithBreak(func(i int, table *goquery.Selection) bool {
		if i >= maxTables {
			return false
		}
		var rows [][]string
		table.Find("tr").EachWithBreak(func(j int, tr *goquery.Selection) bool {
			if j >= maxTableRows {
				return false
			}
			var cells []string
			tr.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(cell.Text()))
			})
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
			return true
		})
		if len(rows) > 0 {
			s.Tables = append(s.Tables, rows)
		}
		return true
	})

	doc.Find("ul, ol").EachWithBreak(func(i int, list *goquery.Selection) bool {
		if i >= maxLists {
			return false
		}
		var items []string
		list.Find("li").Each(func(_ int, li *goquery.Selection) {
			items = append(items, strings.TrimSpace(li.Text()))
		})
		if len(items) > 0 {
			s.Lists = append(s.Lists, items)
		}
		return true
	})

	return s
}

// Render formats the structured content as a compact text block, one table
// row or list per line.
func (s Structured) Render() string {
	if s.Empty() {
		return ""
	}
	var b strings.Builder
	for i, table := range s.Tables {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Таблица:\n")
		for _, row := range table {
			b.WriteString(strings.Join(row, " | "))
			b.WriteString("\n")
		}
	}
	if len(s.Lists) > 0 {
		if len(s.Tables) > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Списки:\n")
		for _, items := range s.Lists {
			b.WriteString("- ")
			b.WriteString(strings.Join(items, "; "))
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

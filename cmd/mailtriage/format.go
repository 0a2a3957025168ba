package main

import (
	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

var (
	purple    = lipgloss.Color("99")
	gray      = lipgloss.Color("245")
	lightGray = lipgloss.Color("241")

	headerStyle  = lipgloss.NewStyle().Foreground(purple).Bold(true).Align(lipgloss.Center).Padding(0, 1)
	keyStyle     = lipgloss.NewStyle().Foreground(purple).Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	oddRowStyle  = lipgloss.NewStyle().Foreground(gray).Padding(0, 1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lightGray).Padding(0, 1)
	borderStyle  = lipgloss.NewStyle().Foreground(purple)
	titleStyle   = lipgloss.NewStyle().Bold(true).MarginTop(1)
)

// listTable renders rows under a header line.
func listTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return evenRowStyle
			default:
				return oddRowStyle
			}
		}).
		Headers(headers...)

	for _, r := range rows {
		t.Row(r...)
	}
	return t.String()
}

// fieldTable renders key/value pairs with the key column highlighted.
func fieldTable(rows [][2]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return keyStyle
			}
			return cellStyle
		})

	for _, r := range rows {
		t.Row(r[0], r[1])
	}
	return t.String()
}

func title(s string) string {
	return titleStyle.Render(s)
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

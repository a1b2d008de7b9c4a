package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
)

var (
	colorOK     = color.New(color.FgGreen, color.Bold).SprintFunc()
	colorErr    = color.New(color.FgRed, color.Bold).SprintFunc()
	colorPrompt = color.New(color.FgMagenta).SprintFunc()
	colorInfo   = color.New(color.FgBlue).SprintFunc()
)

// renderSearchData prints a /search or /lookup payload as a table.
func renderSearchData(resp *serverResponse) error {
	var data searchData
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return fmt.Errorf("invalid search response: %w", err)
	}

	fmt.Println(colorInfo(resp.Message))
	if len(data.Rows) == 0 {
		if data.Filtered {
			fmt.Println(colorErr("No matching records."))
		}
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(data.Fields)
	table.SetAutoWrapText(false)
	for _, row := range data.Rows {
		cells := make([]string, len(data.Fields))
		for i, f := range data.Fields {
			cells[i] = row[f]
		}
		table.Append(cells)
	}
	table.Render()
	fmt.Println(colorInfo(fmt.Sprintf("%d of %d records shown", data.Count, data.Total)))
	return nil
}

// renderDatasetTable prints the stored dataset listing.
func renderDatasetTable(infos []datasetInfo) {
	if len(infos) == 0 {
		fmt.Println(colorInfo("No datasets stored yet."))
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Source", "Rows"})
	table.SetAutoWrapText(false)
	for _, info := range infos {
		table.Append([]string{info.ID, info.Source, fmt.Sprintf("%d", info.Rows)})
	}
	table.Render()
}

// renderStats pretty-prints the /stats payload.
func renderStats(raw jsoniter.RawMessage) error {
	var data struct {
		Datasets   []datasetInfo `json:"datasets"`
		TotalRows  int           `json:"total_rows"`
		Fields     []string      `json:"fields"`
		FieldCount int           `json:"field_count"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("invalid stats response: %w", err)
	}

	renderDatasetTable(data.Datasets)
	fmt.Println(colorInfo("Total rows: ", data.TotalRows))
	fmt.Println(colorInfo("Fields (", data.FieldCount, "): "))
	for _, f := range data.Fields {
		fmt.Printf("  %s\n", f)
	}
	return nil
}

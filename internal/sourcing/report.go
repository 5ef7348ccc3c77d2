package sourcing

import (
	"fmt"
	"strings"
)

// SourceBlocks groups the per-item text blocks produced for one data source,
// in item order.
type SourceBlocks struct {
	Source DataSource
	Blocks []string
}

// FormatReport assembles the final report corpus: header, external section,
// internal section, then the analysis instructions for the downstream model.
// Pure string assembly; no I/O.
func FormatReport(projectName string, items []Item, external, internal []SourceBlocks, dimensions []Dimension) string {
	var b strings.Builder

	b.WriteString("# Data Source Search Results\n\n")
	if projectName != "" {
		fmt.Fprintf(&b, "**Project**: %s\n\n", projectName)
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		if it.Quantity != "" {
			names = append(names, fmt.Sprintf("%s (qty %s)", it.Name, it.Quantity))
		} else {
			names = append(names, it.Name)
		}
	}
	fmt.Fprintf(&b, "**Items**: %s\n\n", strings.Join(names, ", "))
	if len(external) > 0 {
		fmt.Fprintf(&b, "**External sources**: %s\n\n", joinSourceNames(external))
	}
	if len(internal) > 0 {
		fmt.Fprintf(&b, "**Internal sources**: %s\n\n", joinSourceNames(internal))
	}
	b.WriteString("---\n\n")

	section := 0
	if len(external) > 0 {
		section++
		fmt.Fprintf(&b, "## %d. External Source Results\n\n", section)
		for _, sb := range external {
			fmt.Fprintf(&b, "### %s\n\n", sb.Source.Name)
			for _, block := range sb.Blocks {
				b.WriteString(block)
				b.WriteString("\n")
			}
		}
	}
	if len(internal) > 0 {
		section++
		fmt.Fprintf(&b, "## %d. Internal Source Results\n\n", section)
		for _, sb := range internal {
			fmt.Fprintf(&b, "### %s\n\n", sb.Source.Name)
			for _, block := range sb.Blocks {
				b.WriteString(block)
				b.WriteString("\n")
			}
		}
	}

	b.WriteString(analysisInstructions(dimensions))
	return b.String()
}

func joinSourceNames(blocks []SourceBlocks) string {
	names := make([]string, 0, len(blocks))
	for _, sb := range blocks {
		names = append(names, sb.Source.Name)
	}
	return strings.Join(names, ", ")
}

// analysisInstructions is the fixed instruction block appended to every
// report. The downstream model follows it to turn the raw findings into a
// sourcing recommendation.
func analysisInstructions(dimensions []Dimension) string {
	dimNames := make([]string, 0, len(dimensions))
	for _, d := range dimensions {
		dimNames = append(dimNames, d.Name)
	}
	dims := strings.Join(dimNames, ", ")
	if dims == "" {
		dims = "historical performance, market share, overall strength, key capability"
	}

	var b strings.Builder
	b.WriteString("---\n\n## Analysis Instructions\n\n")
	b.WriteString("Based on the search results above, produce a sourcing analysis report with the following structure:\n\n")
	b.WriteString("1. **Overview**: summarize the items under procurement and the overall supply landscape.\n")
	b.WriteString("2. **Internal data analysis**: interpret the historical procurement records and secondary price history; call out price trends and past supplier performance.\n")
	fmt.Fprintf(&b, "3. **Supplier evaluation**: rate each candidate supplier on these dimensions: %s. Present the ratings as a Markdown table with one supplier per row.\n", dims)
	b.WriteString("4. **External market summary**: condense the external search findings per item, noting current market pricing and availability.\n")
	b.WriteString("5. **Price comparison**: a Markdown table comparing internal historical prices against current external market prices per item.\n")
	b.WriteString("6. **Recommendation**: recommend suppliers and a procurement approach, with reasoning grounded in the data above. Flag any data gaps explicitly instead of inventing figures.\n\n")
	b.WriteString("Cite which source each claim comes from. Where a dataset is marked as placeholder data, say so and do not treat it as real.\n")
	return b.String()
}

package sourcing

import (
	"fmt"
	"strings"
)

// SupplierNameColumn is the column the potential-supplier phase-1 ranking
// exposes supplier names under; phase 2 derives its search targets from it.
const SupplierNameColumn = "supplier_name"

// EscapeLiteral doubles single quotes so item names cannot corrupt a
// statement.
func EscapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// HistoricalPerformanceStatement groups historical bid records by supplier,
// matching the item against project-name or refined-product columns, ranked
// by win count then total won amount, top 10.
func HistoricalPerformanceStatement(table, itemName string) string {
	item := EscapeLiteral(itemName)
	return strings.TrimSpace(fmt.Sprintf(`
SELECT
    supplier_name,
    COUNT(*) AS bid_count,
    SUM(CASE WHEN participation_status = 'won' THEN 1 ELSE 0 END) AS win_count,
    ROUND(SUM(CASE WHEN participation_status = 'won' THEN 1 ELSE 0 END) * 100.0 / COUNT(*), 2) AS win_rate_pct,
    SUM(CAST(REPLACE(award_amount, ',', '') AS DECIMAL(15,2))) AS total_won_amount
FROM %s
WHERE (project_name LIKE '%%%s%%' OR refined_product LIKE '%%%s%%')
GROUP BY supplier_name
ORDER BY win_count DESC, total_won_amount DESC
LIMIT 10;`, table, item, item))
}

// SecondaryPriceStatement looks up historical secondary-procurement prices
// for the item by material description.
func SecondaryPriceStatement(table, itemName string) string {
	item := EscapeLiteral(itemName)
	return strings.TrimSpace(fmt.Sprintf(`
SELECT
  material_desc,
  unit,
  avg_price,
  max_price,
  min_price
FROM %s
WHERE material_desc LIKE '%%%s%%'
LIMIT 10;`, table, item))
}

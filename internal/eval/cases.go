package eval

// TestCase is one question in the fixed battery. Cases are static:
// loaded once, never mutated at runtime.
type TestCase struct {
	// Question is the natural-language question put to the pipeline.
	Question string `json:"question"`

	// ExpectedStrings must all appear (case-insensitive) in the
	// response text for string_match to pass. An empty list passes.
	ExpectedStrings []string `json:"expected_strings,omitempty"`

	// Category groups cases for filtering and per-category tallies.
	Category string `json:"category"`

	// GoldenSQL, when set, produces the expected result for
	// golden_compare. Cases without it are skipped in that mode.
	GoldenSQL string `json:"golden_sql,omitempty"`

	// ExpectedResult is the single expected value for count-style
	// questions, kept for report readability.
	ExpectedResult string `json:"expected_result,omitempty"`
}

// Categories in battery order.
var Categories = []string{"basic", "aggregation", "data_quality", "complex", "edge_case"}

// FilterCategory returns the cases in the named category, or all cases
// when category is empty.
func FilterCategory(cases []TestCase, category string) []TestCase {
	if category == "" {
		return cases
	}
	var out []TestCase
	for _, tc := range cases {
		if tc.Category == category {
			out = append(out, tc)
		}
	}
	return out
}

// Battery returns the fixed TPC-H test battery.
func Battery() []TestCase {
	return []TestCase{
		// basic: single-table queries
		{
			Question:        "How many customers are in the database?",
			ExpectedStrings: []string{"150"},
			Category:        "basic",
			GoldenSQL:       "SELECT COUNT(*) AS customer_count FROM customer",
			ExpectedResult:  "150000",
		},
		{
			Question:        "How many orders are there in total?",
			ExpectedStrings: []string{"1,500,000"},
			Category:        "basic",
			GoldenSQL:       "SELECT COUNT(*) AS order_count FROM orders",
			ExpectedResult:  "1500000",
		},
		{
			Question:        "What are the five regions in the database?",
			ExpectedStrings: []string{"AFRICA", "AMERICA", "ASIA", "EUROPE", "MIDDLE EAST"},
			Category:        "basic",
			GoldenSQL:       "SELECT r_name FROM region ORDER BY r_name",
		},
		{
			Question:        "What are the different customer market segments?",
			ExpectedStrings: []string{"AUTOMOBILE", "BUILDING", "FURNITURE", "HOUSEHOLD", "MACHINERY"},
			Category:        "basic",
			GoldenSQL:       "SELECT DISTINCT c_mktsegment FROM customer ORDER BY 1",
		},

		// aggregation: GROUP BY and ranking
		{
			Question:        "Which nation has the highest total order revenue?",
			ExpectedStrings: []string{"FRANCE"},
			Category:        "aggregation",
			GoldenSQL: `SELECT n.n_name, ROUND(SUM(o.o_totalprice), 2) AS revenue
FROM orders o
JOIN customer c ON o.o_custkey = c.c_custkey
JOIN nation n ON c.c_nationkey = n.n_nationkey
GROUP BY n.n_name
ORDER BY revenue DESC
LIMIT 1`,
		},
		{
			Question:        "Which market segment generates the most revenue?",
			ExpectedStrings: []string{"BUILDING"},
			Category:        "aggregation",
			GoldenSQL: `SELECT c.c_mktsegment, ROUND(SUM(o.o_totalprice), 2) AS revenue
FROM orders o
JOIN customer c ON o.o_custkey = c.c_custkey
GROUP BY c.c_mktsegment
ORDER BY revenue DESC
LIMIT 1`,
		},
		{
			Question:        "Which order priority has the most orders?",
			ExpectedStrings: []string{"5-LOW"},
			Category:        "aggregation",
			GoldenSQL: `SELECT o_orderpriority, COUNT(*) AS cnt
FROM orders
GROUP BY o_orderpriority
ORDER BY cnt DESC
LIMIT 1`,
		},
		{
			Question:        "Which nation has the most suppliers?",
			ExpectedStrings: []string{"IRAQ"},
			Category:        "aggregation",
			GoldenSQL: `SELECT n.n_name, COUNT(*) AS supplier_count
FROM supplier s
JOIN nation n ON s.s_nationkey = n.n_nationkey
GROUP BY n.n_name
ORDER BY supplier_count DESC
LIMIT 1`,
		},
		{
			Question:        "Which part brand has the highest total revenue?",
			ExpectedStrings: []string{"Brand#35"},
			Category:        "aggregation",
			GoldenSQL: `SELECT p.p_brand,
       ROUND(SUM(l.l_extendedprice * (1 - l.l_discount)), 2) AS revenue
FROM lineitem l
JOIN part p ON l.l_partkey = p.p_partkey
GROUP BY p.p_brand
ORDER BY revenue DESC
LIMIT 1`,
		},

		// data_quality: column naming, type handling, date filtering
		{
			Question:        "How many orders were placed in 1995?",
			ExpectedStrings: []string{"228"},
			Category:        "data_quality",
			GoldenSQL: `SELECT COUNT(*) AS order_count
FROM orders
WHERE o_orderdate >= '1995-01-01'
  AND o_orderdate < '1996-01-01'`,
			ExpectedResult: "228637",
		},
		{
			Question:        "What percentage of orders are marked as urgent?",
			ExpectedStrings: []string{"20"},
			Category:        "data_quality",
			GoldenSQL: `SELECT ROUND(100.0 * COUNT(*) FILTER (WHERE o_orderpriority = '1-URGENT') / COUNT(*), 1) AS pct
FROM orders`,
			ExpectedResult: "20.0",
		},
		{
			Question:        "How many line items have been returned?",
			ExpectedStrings: []string{"1,478,870"},
			Category:        "data_quality",
			GoldenSQL: `SELECT COUNT(*) AS returned_count
FROM lineitem
WHERE l_returnflag = 'R'`,
			ExpectedResult: "1478870",
		},
		{
			Question:        "What are the possible order statuses and how many orders are in each?",
			ExpectedStrings: []string{"F", "O", "P"},
			Category:        "data_quality",
			GoldenSQL: `SELECT o_orderstatus, COUNT(*) AS cnt
FROM orders
GROUP BY o_orderstatus
ORDER BY cnt DESC`,
		},

		// complex: multi-table joins and comparisons
		{
			Question:        "Compare total order revenue across all five regions",
			ExpectedStrings: []string{"EUROPE", "ASIA", "AMERICA", "AFRICA", "MIDDLE EAST"},
			Category:        "complex",
			GoldenSQL: `SELECT r.r_name, ROUND(SUM(o.o_totalprice), 2) AS revenue
FROM orders o
JOIN customer c ON o.o_custkey = c.c_custkey
JOIN nation n ON c.c_nationkey = n.n_nationkey
JOIN region r ON n.n_regionkey = r.r_regionkey
GROUP BY r.r_name
ORDER BY revenue DESC`,
		},
		{
			Question:        "What are the top 3 nations by number of suppliers and how many does each have?",
			ExpectedStrings: []string{"IRAQ", "PERU", "ALGERIA"},
			Category:        "complex",
			GoldenSQL: `SELECT n.n_name, COUNT(*) AS supplier_count
FROM supplier s
JOIN nation n ON s.s_nationkey = n.n_nationkey
GROUP BY n.n_name
ORDER BY supplier_count DESC
LIMIT 3`,
		},
		{
			Question:        "Which ship mode is used most frequently?",
			ExpectedStrings: []string{"TRUCK", "SHIP", "AIR"},
			Category:        "complex",
			GoldenSQL: `SELECT l_shipmode, COUNT(*) AS cnt
FROM lineitem
GROUP BY l_shipmode
ORDER BY cnt DESC`,
		},

		// edge_case: boundary conditions
		{
			Question:        "Which customer has the highest account balance and what nation are they from?",
			ExpectedStrings: []string{"Customer#000061453", "MOROCCO"},
			Category:        "edge_case",
			GoldenSQL: `SELECT c.c_name, c.c_acctbal, n.n_name
FROM customer c
JOIN nation n ON c.c_nationkey = n.n_nationkey
ORDER BY c.c_acctbal DESC
LIMIT 1`,
		},
		{
			Question: "Are there any customers with a negative account balance? How many?",
			Category: "edge_case",
			GoldenSQL: `SELECT COUNT(*) AS negative_balance_count
FROM customer
WHERE c_acctbal < 0`,
		},
	}
}

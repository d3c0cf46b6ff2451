// Package queries holds the fixed SQL run against the loaded tables: the two
// business questions and the data-quality checks. The statements are kept
// verbatim; downstream reports compare their output across runs.
package queries

// Query is a named, parameterless statement.
type Query struct {
	Name     string
	Question string
	SQL      string
}

const receiptsStatusAvg = `
        SELECT rewardsReceiptStatus, AVG(totalSpent) AS average_spend
        FROM receipts
        WHERE rewardsReceiptStatus IN ('REJECTED', 'FINISHED')
        GROUP BY rewardsReceiptStatus;
    `

const itemsPurchased = `
        SELECT 
            rewardsReceiptStatus,
            COUNT(receipt_items.item_id) AS item_count
        FROM receipts
        JOIN receipt_items ON receipts._id = receipt_items.receipt_id
        WHERE rewardsReceiptStatus IN ('FINISHED', 'REJECTED')
        GROUP BY rewardsReceiptStatus;
    `

// ReceiptsStatusAvg is average totalSpent per status, FINISHED and REJECTED only.
func ReceiptsStatusAvg() string { return receiptsStatusAvg }

// ItemsPurchased is the receipt item count per status, FINISHED and REJECTED only.
func ItemsPurchased() string { return itemsPurchased }

// Business returns the business questions in the order the etl binary prints them.
func Business() []Query {
	return []Query{
		{
			Name:     "Average spending by status",
			Question: "When considering average spend from receipts with 'rewardsReceiptStatus' of 'Accepted' or 'Rejected', which is greater?",
			SQL:      receiptsStatusAvg,
		},
		{
			Name:     "Items purchased",
			Question: "When considering total number of items purchased from receipts with 'rewardsReceiptStatus' of 'Accepted' or 'Rejected', which is greater?",
			SQL:      itemsPurchased,
		},
	}
}

// DataQualityChecks returns the data-quality checks in run order.
//
// "Inactive Users with Recent Receipts" uses SQLite date functions and fails
// on the other backends.
func DataQualityChecks() []Query {
	return []Query{
		{
			Name:     "Receipts with missing fields",
			Question: "How many receipts lack userId, purchaseDate or totalSpent?",
			SQL: `
        SELECT 
            COUNT(*) AS missing_fields_count,
            SUM(CASE WHEN userId IS NULL THEN 1 ELSE 0 END) AS null_userId_count,
            SUM(CASE WHEN purchaseDate IS NULL THEN 1 ELSE 0 END) AS null_purchaseDate_count,
            SUM(CASE WHEN totalSpent IS NULL THEN 1 ELSE 0 END) AS null_totalSpent_count
        FROM receipts
        WHERE userId IS NULL 
           OR purchaseDate IS NULL 
           OR totalSpent IS NULL;
    `,
		},
		{
			Name:     "Duplicate Receipts",
			Question: "Which userId, purchaseDate, totalSpent groups hold more than one receipt?",
			SQL: `
        SELECT 
            userId,
            purchaseDate,
            totalSpent,
            COUNT(*) AS receipt_count
        FROM receipts
        GROUP BY userId, purchaseDate, totalSpent
        HAVING COUNT(*) > 1;
    `,
		},
		{
			Name:     "Inactive Users with Recent Receipts",
			Question: "Which inactive users received receipts in the last 30 days?",
			SQL: `
        SELECT 
            u._id AS user_id,
            COUNT(r._id) AS recent_receipts_count,
            MAX(r.createDate) AS last_receipt_date
        FROM users u
        LEFT JOIN receipts r ON u._id = r.userId
        WHERE u.active = 0
        AND r.createDate >= DATE('now', '-30 days')
        GROUP BY u._id;
    `,
		},
		{
			Name:     "Users with no receipts",
			Question: "How many users have never received a receipt?",
			SQL: `
        SELECT 
            COUNT(u._id) AS users_with_no_receipts
        FROM users u
        LEFT JOIN receipts r ON u._id = r.userId
        WHERE r._id IS NULL;
    `,
		},
		{
			Name:     "Unusual receipt amounts",
			Question: "How many receipts total more than twice or less than a tenth of the average?",
			SQL: `
        WITH average_spent AS (
            SELECT AVG(totalSpent) AS avg_spent
            FROM receipts
        )
        SELECT 
            COUNT(*) AS unusual_receipts_count,
            SUM(totalSpent) AS unusual_total_spent
        FROM receipts
        WHERE totalSpent > (SELECT avg_spent FROM average_spent) * 2
           OR totalSpent < (SELECT avg_spent FROM average_spent) / 10;
    `,
		},
		{
			Name:     "Users never logged in",
			Question: "How many users have no recorded login?",
			SQL: `
        SELECT 
            COUNT(u._id) AS users_never_logged_in
        FROM users u
        WHERE lastLogin IS NULL;
    `,
		},
	}
}

package reporting

import (
	"fmt"
	"strings"
)

// RenderSuppliersCSV renders supplier leaderboard rows as CSV string.
func RenderSuppliersCSV(rows []PositionRow) string {
	var sb strings.Builder

	sb.WriteString("rank,actor_address,net_supply,total_supplied,total_withdrawn,updated_at\n")
	for _, p := range rows {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%s,%d\n",
			p.Rank, p.ActorAddress, p.NetSupply, p.Supplied, p.Withdrawn, p.UpdatedAt))
	}

	return sb.String()
}

// RenderBorrowersCSV renders borrower leaderboard rows as CSV string.
func RenderBorrowersCSV(rows []PositionRow) string {
	var sb strings.Builder

	sb.WriteString("rank,actor_address,net_borrow,total_borrowed,total_repaid,updated_at\n")
	for _, p := range rows {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%s,%d\n",
			p.Rank, p.ActorAddress, p.NetBorrow, p.Borrowed, p.Repaid, p.UpdatedAt))
	}

	return sb.String()
}

// RenderActivitiesCSV renders activity rows as CSV string.
func RenderActivitiesCSV(rows []ActivityRow) string {
	var sb strings.Builder

	sb.WriteString("timestamp,kind,actor_address,amount,block_number,transaction_hash\n")
	for _, a := range rows {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%s,%d,%s\n",
			a.Timestamp, a.Kind, a.ActorAddress, a.AmountFormatted, a.BlockNumber, a.TransactionHash))
	}

	return sb.String()
}

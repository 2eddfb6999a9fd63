package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# %s/%s Market Report\n\n", r.Market.CollateralSymbol, r.Market.LoanSymbol))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Market: `%s`\n\n", r.Market.MarketID))

	// Market State
	sb.WriteString("## Market State\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Supply (%s) | %s |\n", r.Market.CollateralSymbol, r.Market.TotalSupply))
	sb.WriteString(fmt.Sprintf("| Total Borrow (%s) | %s |\n", r.Market.LoanSymbol, r.Market.TotalBorrow))
	sb.WriteString(fmt.Sprintf("| Snapshot Block | %d |\n", r.Market.SnapshotBlock))
	sb.WriteString(fmt.Sprintf("| Snapshot Time | %s |\n", formatUnix(r.Market.SnapshotTime)))
	sb.WriteString(fmt.Sprintf("| Active Suppliers | %d |\n", r.Market.ActiveSuppliers))
	sb.WriteString(fmt.Sprintf("| Active Borrowers | %d |\n", r.Market.ActiveBorrowers))
	sb.WriteString(fmt.Sprintf("| Total Activities | %d |\n", r.Market.TotalActivities))
	sb.WriteString("\n")

	// 24h Changes
	sb.WriteString("## 24h Change\n\n")
	if r.Changes.HaveBaseline {
		sb.WriteString("| Metric | Change | Change % |\n")
		sb.WriteString("|--------|--------|----------|\n")
		sb.WriteString(fmt.Sprintf("| Supply | %s | %.2f%% |\n", r.Changes.SupplyChange, r.Changes.SupplyChangePct))
		sb.WriteString(fmt.Sprintf("| Borrow | %s | %.2f%% |\n", r.Changes.BorrowChange, r.Changes.BorrowChangePct))
	} else {
		sb.WriteString("No snapshot older than 24h available for comparison.\n")
	}
	sb.WriteString("\n")

	// Top Suppliers
	sb.WriteString(fmt.Sprintf("## Top Suppliers (%s)\n\n", r.Market.CollateralSymbol))
	if len(r.TopSuppliers) > 0 {
		sb.WriteString("| # | Actor | Net Supply | Supplied | Withdrawn |\n")
		sb.WriteString("|---|-------|------------|----------|----------|\n")
		for _, p := range r.TopSuppliers {
			sb.WriteString(fmt.Sprintf("| %d | `%s` | %s | %s | %s |\n",
				p.Rank, p.ActorAddress, p.NetSupply, p.Supplied, p.Withdrawn))
		}
	} else {
		sb.WriteString("No active suppliers.\n")
	}
	sb.WriteString("\n")

	// Top Borrowers
	sb.WriteString(fmt.Sprintf("## Top Borrowers (%s)\n\n", r.Market.LoanSymbol))
	if len(r.TopBorrowers) > 0 {
		sb.WriteString("| # | Actor | Net Borrow | Borrowed | Repaid |\n")
		sb.WriteString("|---|-------|------------|----------|--------|\n")
		for _, p := range r.TopBorrowers {
			sb.WriteString(fmt.Sprintf("| %d | `%s` | %s | %s | %s |\n",
				p.Rank, p.ActorAddress, p.NetBorrow, p.Borrowed, p.Repaid))
		}
	} else {
		sb.WriteString("No active borrowers.\n")
	}
	sb.WriteString("\n")

	// Recent Activity
	sb.WriteString("## Recent Activity\n\n")
	if len(r.RecentActivities) > 0 {
		sb.WriteString("| Time | Kind | Actor | Amount | Block | Tx |\n")
		sb.WriteString("|------|------|-------|--------|-------|----|\n")
		for _, a := range r.RecentActivities {
			sb.WriteString(fmt.Sprintf("| %s | %s | `%s` | %s | %d | `%s` |\n",
				formatUnix(a.Timestamp), a.Kind, shortAddress(a.ActorAddress),
				a.AmountFormatted, a.BlockNumber, shortHash(a.TransactionHash)))
		}
	} else {
		sb.WriteString("No activity recorded.\n")
	}
	sb.WriteString("\n")

	// Ingestion Runs
	sb.WriteString("## Ingestion Runs\n\n")
	if len(r.Runs) > 0 {
		sb.WriteString("| Run | Mode | Range | Ingested | Skipped | Status | Finished |\n")
		sb.WriteString("|-----|------|-------|----------|---------|--------|----------|\n")
		for _, run := range r.Runs {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d-%d | %d | %d | %s | %s |\n",
				shortRunID(run.RunID), run.Mode, run.FromBlock, run.ToBlock,
				run.ActivitiesIngested, run.DuplicatesSkipped, run.Status, formatUnix(run.FinishedAt)))
		}
	} else {
		sb.WriteString("No runs recorded.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05")
}

// shortAddress compresses a 0x address to 0xabcd..ef12 for table width.
func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + ".." + addr[len(addr)-4:]
}

func shortHash(h string) string {
	if len(h) <= 14 {
		return h
	}
	return h[:10] + ".." + h[len(h)-4:]
}

func shortRunID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

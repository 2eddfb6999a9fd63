package reporting

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"morpho-market-indexer/internal/domain"
)

// Exporter writes JSON backups of run output. Each run produces
// timestamped files plus *_latest.json duplicates, so the newest state is
// always at a fixed path while history accumulates.
type Exporter struct {
	outputDir string
	now       func() time.Time
}

// NewExporter creates an exporter writing into outputDir.
func NewExporter(outputDir string) *Exporter {
	return &Exporter{
		outputDir: outputDir,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (e *Exporter) WithClock(now func() time.Time) *Exporter {
	e.now = now
	return e
}

// backupActivity is the JSON shape of one activity. Raw amounts are
// decimal strings; big.Int never round-trips through float.
type backupActivity struct {
	ID              string `json:"id"`
	Kind            string `json:"kind"`
	Amount          string `json:"amount"`
	AmountFormatted string `json:"amountFormatted"`
	ActorAddress    string `json:"actorAddress"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
	Timestamp       int64  `json:"timestamp"`
	MarketID        string `json:"marketId"`
	BorrowShares    string `json:"borrowShares,omitempty"`
}

type backupPosition struct {
	ActorAddress   string `json:"actorAddress"`
	MarketID       string `json:"marketId"`
	TotalSupplied  string `json:"totalSupplied"`
	TotalWithdrawn string `json:"totalWithdrawn"`
	NetSupply      string `json:"netSupply"`
	TotalBorrowed  string `json:"totalBorrowed"`
	TotalRepaid    string `json:"totalRepaid"`
	NetBorrow      string `json:"netBorrow"`
	BorrowShares   string `json:"borrowShares"`
	UpdatedAt      int64  `json:"updatedAt"`
}

type backupSnapshot struct {
	MarketID      string `json:"marketId"`
	TotalSupply   string `json:"totalSupply"`
	TotalBorrow   string `json:"totalBorrow"`
	SnapshotBlock uint64 `json:"snapshotBlock"`
	Timestamp     int64  `json:"timestamp"`
}

// Export writes all three backup files. Returns the first error; a
// failed file does not stop the remaining writes.
func (e *Exporter) Export(activities []*domain.Activity, positions []*domain.UserPosition, snapshot *domain.MarketSnapshot) error {
	if err := os.MkdirAll(e.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	stamp := e.now().Format("20060102T150405Z")

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(e.writePair("activities", stamp, toBackupActivities(activities)))
	record(e.writePair("user_positions", stamp, toBackupPositions(positions)))
	record(e.writePair("market_snapshot", stamp, toBackupSnapshot(snapshot)))

	return firstErr
}

// writePair writes <name>_<stamp>.json and <name>_latest.json.
func (e *Exporter) writePair(name, stamp string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	stamped := filepath.Join(e.outputDir, fmt.Sprintf("%s_%s.json", name, stamp))
	if err := os.WriteFile(stamped, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", stamped, err)
	}

	latest := filepath.Join(e.outputDir, name+"_latest.json")
	if err := os.WriteFile(latest, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", latest, err)
	}

	return nil
}

func toBackupActivities(activities []*domain.Activity) []backupActivity {
	out := make([]backupActivity, 0, len(activities))
	for _, a := range activities {
		if a == nil {
			continue
		}
		b := backupActivity{
			ID:              a.ID,
			Kind:            string(a.Kind),
			Amount:          bigText(a.Amount),
			AmountFormatted: a.AmountFormatted,
			ActorAddress:    a.ActorAddress,
			TransactionHash: a.TransactionHash,
			BlockNumber:     a.BlockNumber,
			Timestamp:       a.Timestamp,
			MarketID:        a.MarketID,
		}
		if a.BorrowShares != nil {
			b.BorrowShares = a.BorrowShares.String()
		}
		out = append(out, b)
	}
	return out
}

func toBackupPositions(positions []*domain.UserPosition) []backupPosition {
	out := make([]backupPosition, 0, len(positions))
	for _, p := range positions {
		if p == nil {
			continue
		}
		out = append(out, backupPosition{
			ActorAddress:   p.ActorAddress,
			MarketID:       p.MarketID,
			TotalSupplied:  bigText(p.TotalSupplied),
			TotalWithdrawn: bigText(p.TotalWithdrawn),
			NetSupply:      bigText(p.NetSupply),
			TotalBorrowed:  bigText(p.TotalBorrowed),
			TotalRepaid:    bigText(p.TotalRepaid),
			NetBorrow:      bigText(p.NetBorrow),
			BorrowShares:   bigText(p.BorrowShares),
			UpdatedAt:      p.UpdatedAt,
		})
	}
	return out
}

func toBackupSnapshot(s *domain.MarketSnapshot) *backupSnapshot {
	if s == nil {
		return nil
	}
	return &backupSnapshot{
		MarketID:      s.MarketID,
		TotalSupply:   bigText(s.TotalSupply),
		TotalBorrow:   bigText(s.TotalBorrow),
		SnapshotBlock: s.SnapshotBlock,
		Timestamp:     s.Timestamp,
	}
}

func bigText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

package api

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/normalization"
	"morpho-market-indexer/internal/storage"
)

const (
	leaderboardSize = 10
	defaultRunLimit = 10
	maxRunLimit     = 100
)

type marketInfo struct {
	MarketID           string `json:"marketId"`
	ContractAddress    string `json:"contractAddress"`
	CollateralSymbol   string `json:"collateralSymbol"`
	LoanSymbol         string `json:"loanSymbol"`
	CollateralDecimals int32  `json:"collateralDecimals"`
	LoanDecimals       int32  `json:"loanDecimals"`
	DeployBlock        uint64 `json:"deployBlock"`
}

type snapshotPayload struct {
	TotalSupply   string `json:"totalSupply"`
	TotalBorrow   string `json:"totalBorrow"`
	SnapshotBlock uint64 `json:"snapshotBlock"`
	Timestamp     int64  `json:"timestamp"`
}

type marketResponse struct {
	Market          marketInfo       `json:"market"`
	Snapshot        *snapshotPayload `json:"snapshot"`
	ActiveSuppliers int              `json:"activeSuppliers"`
	ActiveBorrowers int              `json:"activeBorrowers"`
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := marketResponse{
		Market: marketInfo{
			MarketID:           domain.MarketID,
			ContractAddress:    domain.ContractAddress,
			CollateralSymbol:   domain.CollateralSymbol,
			LoanSymbol:         domain.LoanSymbol,
			CollateralDecimals: domain.CollateralDecimals,
			LoanDecimals:       domain.LoanDecimals,
			DeployBlock:        domain.MarketDeployBlock,
		},
	}

	// A market with no snapshot yet is an empty dashboard, not an error.
	snapshot, err := s.snapshotStore.GetLatest(ctx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("load snapshot: %w", err))
		return
	}
	if snapshot != nil {
		resp.Snapshot = &snapshotPayload{
			TotalSupply:   domain.FormatUnits(snapshot.TotalSupply, domain.CollateralDecimals),
			TotalBorrow:   domain.FormatUnits(snapshot.TotalBorrow, domain.LoanDecimals),
			SnapshotBlock: snapshot.SnapshotBlock,
			Timestamp:     snapshot.Timestamp,
		}
	}

	suppliers, err := s.positionStore.CountActiveSuppliers(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("count suppliers: %w", err))
		return
	}
	borrowers, err := s.positionStore.CountActiveBorrowers(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("count borrowers: %w", err))
		return
	}
	resp.ActiveSuppliers = suppliers
	resp.ActiveBorrowers = borrowers

	s.writeJSON(w, http.StatusOK, resp)
}

type activityPayload struct {
	Kind            string `json:"kind"`
	ActorAddress    string `json:"actorAddress"`
	Amount          string `json:"amount"`
	AmountFormatted string `json:"amountFormatted"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     uint64 `json:"blockNumber"`
	Timestamp       int64  `json:"timestamp"`
	BorrowShares    string `json:"borrowShares,omitempty"`
}

type activitiesResponse struct {
	Activities []activityPayload           `json:"activities"`
	Series     []normalization.SeriesPoint `json:"series"`
	Count      int                         `json:"count"`
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := s.activityStore.GetAll(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("load activities: %w", err))
		return
	}

	// The series stays chronological; the list is newest first.
	series := normalization.Downsample(
		normalization.BuildCumulativeSeries(activities),
		normalization.DefaultMaxChartPoints,
	)

	payload := make([]activityPayload, 0, len(activities))
	for i := len(activities) - 1; i >= 0; i-- {
		a := activities[i]
		item := activityPayload{
			Kind:            string(a.Kind),
			ActorAddress:    a.ActorAddress,
			Amount:          a.Amount.String(),
			AmountFormatted: a.AmountFormatted,
			TransactionHash: a.TransactionHash,
			BlockNumber:     a.BlockNumber,
			Timestamp:       a.Timestamp,
		}
		if a.BorrowShares != nil {
			item.BorrowShares = a.BorrowShares.String()
		}
		payload = append(payload, item)
	}

	s.writeJSON(w, http.StatusOK, activitiesResponse{
		Activities: payload,
		Series:     series,
		Count:      len(payload),
	})
}

type positionPayload struct {
	ActorAddress   string `json:"actorAddress"`
	NetSupply      string `json:"netSupply"`
	NetBorrow      string `json:"netBorrow"`
	TotalSupplied  string `json:"totalSupplied"`
	TotalWithdrawn string `json:"totalWithdrawn"`
	TotalBorrowed  string `json:"totalBorrowed"`
	TotalRepaid    string `json:"totalRepaid"`
	UpdatedAt      int64  `json:"updatedAt"`
}

type distributionSlice struct {
	ActorAddress string  `json:"actorAddress"`
	Value        float64 `json:"value"`
}

type positionsResponse struct {
	TopSuppliers       []positionPayload   `json:"topSuppliers"`
	TopBorrowers       []positionPayload   `json:"topBorrowers"`
	SupplyDistribution []distributionSlice `json:"supplyDistribution"`
	BorrowDistribution []distributionSlice `json:"borrowDistribution"`
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	suppliers, err := s.positionStore.GetTopByNetSupply(ctx, leaderboardSize)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("load top suppliers: %w", err))
		return
	}
	borrowers, err := s.positionStore.GetTopByNetBorrow(ctx, leaderboardSize)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("load top borrowers: %w", err))
		return
	}
	all, err := s.positionStore.GetAll(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("load positions: %w", err))
		return
	}

	resp := positionsResponse{
		TopSuppliers:       make([]positionPayload, 0, len(suppliers)),
		TopBorrowers:       make([]positionPayload, 0, len(borrowers)),
		SupplyDistribution: make([]distributionSlice, 0, len(all)),
		BorrowDistribution: make([]distributionSlice, 0, len(all)),
	}
	for _, p := range suppliers {
		resp.TopSuppliers = append(resp.TopSuppliers, toPositionPayload(p))
	}
	for _, p := range borrowers {
		resp.TopBorrowers = append(resp.TopBorrowers, toPositionPayload(p))
	}
	for _, p := range all {
		if p.ActiveSupplier() {
			resp.SupplyDistribution = append(resp.SupplyDistribution, distributionSlice{
				ActorAddress: p.ActorAddress,
				Value:        domain.DisplayFloat(p.NetSupply, domain.CollateralDecimals),
			})
		}
		if p.ActiveBorrower() {
			resp.BorrowDistribution = append(resp.BorrowDistribution, distributionSlice{
				ActorAddress: p.ActorAddress,
				Value:        domain.DisplayFloat(p.NetBorrow, domain.LoanDecimals),
			})
		}
	}
	sort.Slice(resp.SupplyDistribution, func(i, j int) bool {
		return resp.SupplyDistribution[i].Value > resp.SupplyDistribution[j].Value
	})
	sort.Slice(resp.BorrowDistribution, func(i, j int) bool {
		return resp.BorrowDistribution[i].Value > resp.BorrowDistribution[j].Value
	})

	s.writeJSON(w, http.StatusOK, resp)
}

func toPositionPayload(p *domain.UserPosition) positionPayload {
	return positionPayload{
		ActorAddress:   p.ActorAddress,
		NetSupply:      domain.FormatUnits(p.NetSupply, domain.CollateralDecimals),
		NetBorrow:      domain.FormatUnits(p.NetBorrow, domain.LoanDecimals),
		TotalSupplied:  domain.FormatUnits(p.TotalSupplied, domain.CollateralDecimals),
		TotalWithdrawn: domain.FormatUnits(p.TotalWithdrawn, domain.CollateralDecimals),
		TotalBorrowed:  domain.FormatUnits(p.TotalBorrowed, domain.LoanDecimals),
		TotalRepaid:    domain.FormatUnits(p.TotalRepaid, domain.LoanDecimals),
		UpdatedAt:      p.UpdatedAt,
	}
}

type historyPointPayload struct {
	Timestamp   int64   `json:"timestamp"`
	BlockNumber uint64  `json:"blockNumber"`
	TotalSupply float64 `json:"totalSupply"`
	TotalBorrow float64 `json:"totalBorrow"`
}

type historyResponse struct {
	Hours  int                   `json:"hours"`
	Points []historyPointPayload `json:"points"`
}

func (s *Server) handleMarketHistory(w http.ResponseWriter, r *http.Request) {
	if s.historyStore == nil {
		s.writeError(w, http.StatusNotFound, errors.New("market history not configured"))
		return
	}

	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid hours %q", raw))
			return
		}
		hours = parsed
	}

	end := s.now().Unix()
	start := end - int64(hours)*3600
	points, err := s.historyStore.GetByTimeRange(r.Context(), start, end)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("load history: %w", err))
		return
	}

	resp := historyResponse{Hours: hours, Points: make([]historyPointPayload, 0, len(points))}
	for _, p := range points {
		resp.Points = append(resp.Points, historyPointPayload{
			Timestamp:   p.Timestamp,
			BlockNumber: p.BlockNumber,
			TotalSupply: p.TotalSupply,
			TotalBorrow: p.TotalBorrow,
		})
	}

	s.writeJSON(w, http.StatusOK, resp)
}

type runPayload struct {
	RunID              string `json:"runId"`
	Mode               string `json:"mode"`
	FromBlock          uint64 `json:"fromBlock"`
	ToBlock            uint64 `json:"toBlock"`
	LogsFetched        int    `json:"logsFetched"`
	ActivitiesIngested int    `json:"activitiesIngested"`
	DuplicatesSkipped  int    `json:"duplicatesSkipped"`
	PositionsUpserted  int    `json:"positionsUpserted"`
	SnapshotBlock      uint64 `json:"snapshotBlock"`
	BackupOK           bool   `json:"backupOk"`
	DatabaseOK         bool   `json:"databaseOk"`
	Error              string `json:"error,omitempty"`
	StartedAt          int64  `json:"startedAt"`
	FinishedAt         int64  `json:"finishedAt"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}
	if limit > maxRunLimit {
		limit = maxRunLimit
	}

	runs, err := s.runStore.GetRecent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("load runs: %w", err))
		return
	}

	payload := make([]runPayload, 0, len(runs))
	for _, run := range runs {
		payload = append(payload, runPayload{
			RunID:              run.RunID,
			Mode:               run.Mode,
			FromBlock:          run.FromBlock,
			ToBlock:            run.ToBlock,
			LogsFetched:        run.LogsFetched,
			ActivitiesIngested: run.ActivitiesIngested,
			DuplicatesSkipped:  run.DuplicatesSkipped,
			PositionsUpserted:  run.PositionsUpserted,
			SnapshotBlock:      run.SnapshotBlock,
			BackupOK:           run.BackupOK,
			DatabaseOK:         run.DatabaseOK,
			Error:              run.Error,
			StartedAt:          run.StartedAt,
			FinishedAt:         run.FinishedAt,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": payload})
}

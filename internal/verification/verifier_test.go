package verification

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"morpho-market-indexer/internal/aggregation"
	"morpho-market-indexer/internal/domain"
	"morpho-market-indexer/internal/idhash"
	"morpho-market-indexer/internal/storage/memory"
)

const (
	verifyActorA = "0xaaaa000000000000000000000000000000000001"
	verifyActorB = "0xbbbb000000000000000000000000000000000002"
)

func verifyActivity(kind domain.ActivityKind, actor string, amount int64, block uint64, tx string) *domain.Activity {
	raw := new(big.Int).Mul(big.NewInt(amount), new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(domain.DecimalsFor(kind))), nil))
	a := &domain.Activity{
		ID:              idhash.ComputeActivityID(tx, string(kind), actor),
		Kind:            kind,
		Amount:          raw,
		AmountFormatted: domain.FormatAmount(raw, kind),
		ActorAddress:    actor,
		TransactionHash: tx,
		BlockNumber:     block,
		Timestamp:       1_700_000_000 + int64(block),
		MarketID:        domain.MarketID,
	}
	if kind == domain.KindBorrow {
		a.BorrowShares = big.NewInt(1)
	}
	return a
}

func correctPosition(actor string, activities []*domain.Activity) *domain.UserPosition {
	for _, pos := range aggregation.ComputePositions(activities, 0) {
		if pos.ActorAddress == actor {
			return pos
		}
	}
	return domain.NewUserPosition(actor)
}

func TestComparePositions_ExactMatch(t *testing.T) {
	activities := []*domain.Activity{
		verifyActivity(domain.KindSupply, verifyActorA, 1000, 100, "0x01"),
		verifyActivity(domain.KindWithdraw, verifyActorA, 400, 200, "0x02"),
	}
	stored := correctPosition(verifyActorA, activities)
	recomputed := correctPosition(verifyActorA, activities)

	divergences := ComparePositions(stored, recomputed)
	if len(divergences) != 0 {
		t.Errorf("Expected 0 divergences, got %d: %v", len(divergences), divergences)
	}
}

func TestComparePositions_TamperedNetSupply(t *testing.T) {
	activities := []*domain.Activity{
		verifyActivity(domain.KindSupply, verifyActorA, 1000, 100, "0x01"),
	}
	recomputed := correctPosition(verifyActorA, activities)
	stored := recomputed.Clone()
	stored.NetSupply = big.NewInt(999)

	divergences := ComparePositions(stored, recomputed)
	if len(divergences) != 1 {
		t.Fatalf("Expected 1 divergence, got %d: %v", len(divergences), divergences)
	}
	if divergences[0].Field != "NetSupply" {
		t.Errorf("Expected NetSupply divergence, got %s", divergences[0].Field)
	}
	if divergences[0].Expected != "999" {
		t.Errorf("Expected stored value 999, got %s", divergences[0].Expected)
	}
}

func TestComparePositions_NilTreatedAsZero(t *testing.T) {
	stored := domain.NewUserPosition(verifyActorA)
	stored.BorrowShares = nil
	recomputed := domain.NewUserPosition(verifyActorA)

	divergences := ComparePositions(stored, recomputed)
	if len(divergences) != 0 {
		t.Errorf("Expected 0 divergences, got %d: %v", len(divergences), divergences)
	}
}

func TestVerifyActor_Match(t *testing.T) {
	ctx := context.Background()
	activityStore := memory.NewActivityStore()
	positionStore := memory.NewUserPositionStore()

	activities := []*domain.Activity{
		verifyActivity(domain.KindSupply, verifyActorA, 1000, 100, "0x01"),
		verifyActivity(domain.KindBorrow, verifyActorA, 300, 150, "0x02"),
		verifyActivity(domain.KindWithdraw, verifyActorA, 400, 200, "0x03"),
	}
	if err := activityStore.InsertBulk(ctx, activities); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}
	if err := positionStore.Upsert(ctx, correctPosition(verifyActorA, activities)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	result, err := NewVerifier(activityStore, positionStore).VerifyActor(ctx, verifyActorA)
	if err != nil {
		t.Fatalf("VerifyActor: %v", err)
	}
	if !result.Match {
		t.Errorf("Expected match, got divergences: %v", result.Divergences)
	}
}

func TestVerifyActor_Tampered(t *testing.T) {
	ctx := context.Background()
	activityStore := memory.NewActivityStore()
	positionStore := memory.NewUserPositionStore()

	activities := []*domain.Activity{
		verifyActivity(domain.KindSupply, verifyActorA, 1000, 100, "0x01"),
	}
	if err := activityStore.InsertBulk(ctx, activities); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}

	tampered := correctPosition(verifyActorA, activities)
	tampered.TotalSupplied = big.NewInt(1)
	tampered.NetSupply = big.NewInt(1)
	if err := positionStore.Upsert(ctx, tampered); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	result, err := NewVerifier(activityStore, positionStore).VerifyActor(ctx, verifyActorA)
	if err != nil {
		t.Fatalf("VerifyActor: %v", err)
	}
	if result.Match {
		t.Fatal("Expected divergence for tampered position")
	}
	if len(result.Divergences) != 2 {
		t.Fatalf("Expected 2 divergences, got %d: %v", len(result.Divergences), result.Divergences)
	}

	fields := map[string]bool{}
	for _, d := range result.Divergences {
		fields[d.Field] = true
	}
	if !fields["TotalSupplied"] || !fields["NetSupply"] {
		t.Errorf("Expected TotalSupplied and NetSupply divergences, got %v", result.Divergences)
	}
}

func TestVerifyActor_NotFound(t *testing.T) {
	ctx := context.Background()
	verifier := NewVerifier(memory.NewActivityStore(), memory.NewUserPositionStore())

	_, err := verifier.VerifyActor(ctx, verifyActorA)
	if !errors.Is(err, ErrPositionNotFound) {
		t.Errorf("Expected ErrPositionNotFound, got %v", err)
	}
}

func TestVerifyAll(t *testing.T) {
	ctx := context.Background()
	activityStore := memory.NewActivityStore()
	positionStore := memory.NewUserPositionStore()

	activities := []*domain.Activity{
		verifyActivity(domain.KindSupply, verifyActorA, 1000, 100, "0x01"),
		verifyActivity(domain.KindSupply, verifyActorB, 500, 110, "0x02"),
	}
	if err := activityStore.InsertBulk(ctx, activities); err != nil {
		t.Fatalf("InsertBulk: %v", err)
	}

	// Actor A stored correctly, actor B tampered.
	if err := positionStore.Upsert(ctx, correctPosition(verifyActorA, activities)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	tampered := correctPosition(verifyActorB, activities)
	tampered.TotalSupplied = big.NewInt(42)
	tampered.NetSupply = big.NewInt(42)
	if err := positionStore.Upsert(ctx, tampered); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	// An orphaned stored row with no activity history at all.
	orphan := domain.NewUserPosition("0xcccc000000000000000000000000000000000003")
	orphan.TotalSupplied = big.NewInt(7)
	if err := positionStore.Upsert(ctx, orphan); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	report, err := NewVerifier(activityStore, positionStore).VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}

	if report.TotalPositions != 3 {
		t.Errorf("Expected 3 positions, got %d", report.TotalPositions)
	}
	if report.MatchedPositions != 1 {
		t.Errorf("Expected 1 match, got %d", report.MatchedPositions)
	}
	if report.DivergentPositions != 2 {
		t.Errorf("Expected 2 divergent, got %d", report.DivergentPositions)
	}

	// Results come back ordered by actor address.
	for i := 1; i < len(report.Results); i++ {
		if report.Results[i-1].ActorAddress > report.Results[i].ActorAddress {
			t.Errorf("Results out of order at %d: %s > %s", i, report.Results[i-1].ActorAddress, report.Results[i].ActorAddress)
		}
	}
}

func TestVerifyAll_MissingStoredRow(t *testing.T) {
	ctx := context.Background()
	activityStore := memory.NewActivityStore()
	positionStore := memory.NewUserPositionStore()

	if err := activityStore.Insert(ctx, verifyActivity(domain.KindSupply, verifyActorA, 100, 100, "0x01")); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	report, err := NewVerifier(activityStore, positionStore).VerifyAll(ctx)
	if err != nil {
		t.Fatalf("VerifyAll: %v", err)
	}

	if report.TotalPositions != 1 || report.DivergentPositions != 1 {
		t.Fatalf("Expected 1 divergent position, got %+v", report)
	}
	d := report.Results[0].Divergences
	if len(d) != 1 || d[0].Field != "Position" || d[0].Expected != "missing" {
		t.Errorf("Expected missing-stored divergence, got %v", d)
	}
}

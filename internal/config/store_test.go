package config

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"cryptobot/internal/httpapi"
)

func TestPostgresStore_SaveBot_Upsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := newStore(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bot_configs")).
		WithArgs("bot1", "sma_crossover_v1", "BTCUSDT", "paper", 10000.0, sqlmock.AnyArg(), int64(1000)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = store.SaveBot(context.Background(), httpapi.BotRecord{
		ID:             "bot1",
		StrategyID:     "sma_crossover_v1",
		Symbol:         "BTCUSDT",
		Mode:           "paper",
		InitialBalance: 10000,
		CreatedAtMs:    1000,
	})
	if err != nil {
		t.Fatalf("save bot: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_ListBots_ScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := newStore(db)

	rows := sqlmock.NewRows([]string{"id", "strategy_id", "symbol", "mode", "initial_balance", "parameters", "created_at_ms"}).
		AddRow("bot1", "sma_crossover_v1", "BTCUSDT", "paper", 10000.0, []byte(`{"fast":10}`), int64(1000))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, strategy_id, symbol, mode, initial_balance, parameters, created_at_ms")).
		WillReturnRows(rows)

	recs, err := store.ListBots(context.Background())
	if err != nil {
		t.Fatalf("list bots: %v", err)
	}
	if len(recs) != 1 || recs[0].ID != "bot1" {
		t.Fatalf("expected one bot record 'bot1', got %+v", recs)
	}
	if recs[0].Parameters["fast"] != float64(10) {
		t.Fatalf("expected decoded parameters, got %+v", recs[0].Parameters)
	}
}

func TestPostgresStore_DeleteBot_NoRowsIsError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := newStore(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM bot_configs")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = store.DeleteBot(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error deleting unknown bot")
	}
}

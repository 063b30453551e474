package db

import (
	"strings"
	"testing"

	"github.com/zulandar/helpline/internal/models"
)

func TestDSN_Format(t *testing.T) {
	dsn := DSN("root", "myhost", 9999, "mydb")
	if !strings.HasPrefix(dsn, "root@tcp(") {
		t.Errorf("DSN should start with root@tcp(: %s", dsn)
	}
	if !strings.Contains(dsn, "myhost:9999") {
		t.Errorf("DSN should contain host:port: %s", dsn)
	}
	if !strings.Contains(dsn, "/mydb?") {
		t.Errorf("DSN should contain /database?: %s", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("DSN missing parseTime=true: %s", dsn)
	}
}

func TestNormalizeMySQLDSN_AddsParseTime(t *testing.T) {
	got, err := NormalizeMySQLDSN("app:secret@tcp(db.internal:3306)/helpline")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got, "parseTime=true") {
		t.Errorf("normalized DSN = %q, want parseTime=true", got)
	}
	if !strings.Contains(got, "db.internal:3306") {
		t.Errorf("normalized DSN = %q, lost address", got)
	}
}

func TestNormalizeMySQLDSN_Invalid(t *testing.T) {
	_, err := NormalizeMySQLDSN("not a dsn")
	if err == nil {
		t.Fatal("expected error for invalid dsn")
	}
	if !strings.Contains(err.Error(), "parse mysql dsn") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "parse mysql dsn")
	}
}

func TestConnect_UnsupportedDriver(t *testing.T) {
	_, err := Connect("postgres", "host=localhost")
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), "unsupported driver") {
		t.Errorf("error = %q, want unsupported driver", err.Error())
	}
}

func TestConnect_MySQLBadDSN(t *testing.T) {
	_, err := Connect("mysql", "::::")
	if err == nil {
		t.Fatal("expected error for bad mysql dsn")
	}
}

func TestAllModels_Count(t *testing.T) {
	if got := len(AllModels()); got != 1 {
		t.Errorf("AllModels() = %d models, want 1", got)
	}
}

// --- SQLite tests ---

func TestSQLite_MigrateSeedCount(t *testing.T) {
	gormDB, err := Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	rows := []models.KnowledgeRecord{
		{Intent: "greeting", UserMessage: "Hi", BotResponse: "Hello!", Category: "greeting"},
		{Intent: "shipping_info", UserMessage: "How long?", BotResponse: "3-5 days.", Category: "shipping"},
	}
	if err := SeedKnowledge(gormDB, rows, false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	n, err := CountKnowledge(gormDB)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	// Seeding again without replace appends.
	if err := SeedKnowledge(gormDB, rows[:1], false); err != nil {
		t.Fatalf("seed append: %v", err)
	}
	if n, _ := CountKnowledge(gormDB); n != 3 {
		t.Errorf("count after append = %d, want 3", n)
	}
}

func TestSQLite_SeedReplace(t *testing.T) {
	gormDB, err := Connect("sqlite", "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	first := []models.KnowledgeRecord{
		{Intent: "a", UserMessage: "one", BotResponse: "1"},
		{Intent: "b", UserMessage: "two", BotResponse: "2"},
	}
	if err := SeedKnowledge(gormDB, first, false); err != nil {
		t.Fatalf("seed: %v", err)
	}
	second := []models.KnowledgeRecord{
		{Intent: "c", UserMessage: "three", BotResponse: "3"},
	}
	if err := SeedKnowledge(gormDB, second, true); err != nil {
		t.Fatalf("seed replace: %v", err)
	}

	var got []models.KnowledgeRecord
	if err := gormDB.Order("id ASC").Find(&got).Error; err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 1 || got[0].Intent != "c" {
		t.Errorf("rows after replace = %+v, want only intent c", got)
	}
}

func TestSeedKnowledge_EmptySlice(t *testing.T) {
	gormDB, err := Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := AutoMigrate(gormDB); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := SeedKnowledge(gormDB, nil, false); err != nil {
		t.Errorf("seed empty: %v", err)
	}
}

func TestCountKnowledge_NoTable(t *testing.T) {
	gormDB, err := Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := CountKnowledge(gormDB); err == nil {
		t.Fatal("expected error when table is missing")
	}
}

package knowledge

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/helpline/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const keywordCSV = `intent,user_message,bot_response,category
greeting,Hi,Hello! How can I assist you today?,greeting
order_status,Where is my order?,I can help you track your order.,orders
order_status,Track my package,What's your order number?,orders
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kb.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// --- LoadCSV tests ---

func TestLoadCSV_Keyword(t *testing.T) {
	base, err := LoadCSV(writeFile(t, keywordCSV), VariantKeyword)
	require.NoError(t, err)
	require.Equal(t, 3, base.Len())

	first := base.At(0)
	assert.Equal(t, "greeting", first.Intent)
	assert.Equal(t, "Hi", first.Utterance)
	assert.Equal(t, "Hello! How can I assist you today?", first.Response)
	assert.Equal(t, "greeting", first.Category)
}

func TestLoadCSV_SimilarityNeedsOnlyTwoColumns(t *testing.T) {
	content := "bot_response,user_message\nShipping takes 3-5 days.,How long does shipping take?\n"
	base, err := LoadCSV(writeFile(t, content), VariantSimilarity)
	require.NoError(t, err)
	require.Equal(t, 1, base.Len())
	assert.Equal(t, "How long does shipping take?", base.At(0).Utterance)
	assert.Equal(t, "Shipping takes 3-5 days.", base.At(0).Response)
	assert.Empty(t, base.At(0).Intent)
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"), VariantKeyword)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable), "error %v should wrap ErrUnavailable", err)
}

func TestLoadCSV_MissingColumns(t *testing.T) {
	content := "user_message,bot_response\nHi,Hello\n"
	_, err := LoadCSV(writeFile(t, content), VariantKeyword)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "intent")
	assert.Contains(t, err.Error(), "category")
}

func TestLoadCSV_EmptyFile(t *testing.T) {
	_, err := LoadCSV(writeFile(t, ""), VariantSimilarity)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestReadCSV_HeaderCaseAndBOM(t *testing.T) {
	content := "\ufeffIntent, User_Message ,BOT_RESPONSE,Category,extra\nrefund_request,I need a refund,Refunds take 5-7 days.,returns,x\n"
	base, err := ReadCSV(strings.NewReader(content), VariantKeyword)
	require.NoError(t, err)
	require.Equal(t, 1, base.Len())
	assert.Equal(t, "refund_request", base.At(0).Intent)
}

func TestReadCSV_MalformedQuote(t *testing.T) {
	content := "user_message,bot_response\n\"unterminated,answer\n"
	_, err := ReadCSV(strings.NewReader(content), VariantSimilarity)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestReadCSV_SkipsBlankLines(t *testing.T) {
	content := "user_message,bot_response\n\nHi,Hello\n\n"
	base, err := ReadCSV(strings.NewReader(content), VariantSimilarity)
	require.NoError(t, err)
	assert.Equal(t, 1, base.Len())
}

func TestReadCSV_RejectsEmptyRow(t *testing.T) {
	content := "intent,user_message,bot_response,category\nfaq,Hi,Hello,general\nfaq, , ,general\n"
	_, err := ReadCSV(strings.NewReader(content), VariantKeyword)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "line 3")
}

// --- Base tests ---

func TestBase_PairsRoundTrip(t *testing.T) {
	records := DefaultDataset()
	base := NewBase(records)

	pairs := base.Pairs()
	require.Len(t, pairs, len(records))
	for i, p := range pairs {
		assert.Equal(t, records[i].Utterance, p.Utterance)
		assert.Equal(t, records[i].Response, p.Response)
	}
}

func TestBase_FirstByIntent(t *testing.T) {
	base := NewBase(DefaultDataset())

	rec, ok := base.FirstByIntent("order_status")
	require.True(t, ok)
	assert.Equal(t, "Where is my order?", rec.Utterance)

	_, ok = base.FirstByIntent("warranty")
	assert.False(t, ok)

	_, ok = base.FirstByIntent("Order_Status")
	assert.False(t, ok, "intent lookup is case-sensitive")
}

func TestBase_IsolatedFromCaller(t *testing.T) {
	records := []Record{{Intent: "a", Utterance: "q", Response: "r"}}
	base := NewBase(records)
	records[0].Response = "mutated"

	assert.Equal(t, "r", base.At(0).Response)

	out := base.Records()
	out[0].Response = "mutated again"
	assert.Equal(t, "r", base.At(0).Response)
}

func TestBase_NilSafe(t *testing.T) {
	var base *Base
	assert.Equal(t, 0, base.Len())
	assert.Nil(t, base.Pairs())
	_, ok := base.FirstByIntent("greeting")
	assert.False(t, ok)
}

func TestVariant_RequiredColumns(t *testing.T) {
	assert.Equal(t, []string{"user_message", "bot_response"}, VariantSimilarity.RequiredColumns())
	assert.Len(t, VariantKeyword.RequiredColumns(), 4)
	assert.True(t, VariantKeyword.Valid())
	assert.False(t, Variant("fuzzy").Valid())
}

// --- Dataset tests ---

func TestDefaultDataset(t *testing.T) {
	records := DefaultDataset()
	require.Len(t, records, 12)
	assert.Equal(t, "greeting", records[0].Intent)
	assert.Equal(t, "goodbye", records[11].Intent)
}

func TestWriteCSV_ReadBack(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, DefaultDataset()))
	assert.True(t, strings.HasPrefix(buf.String(), "intent,user_message,bot_response,category\n"))

	base, err := ReadCSV(&buf, VariantKeyword)
	require.NoError(t, err)
	assert.Equal(t, DefaultDataset(), base.Records())
}

// --- LoadDB tests ---

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestLoadDB(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.KnowledgeRecord{}))
	rows := ToModels(DefaultDataset())
	require.NoError(t, db.Create(&rows).Error)

	base, err := LoadDB(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, DefaultDataset(), base.Records())
}

func TestLoadDB_EmptyTable(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&models.KnowledgeRecord{}))

	_, err := LoadDB(context.Background(), db)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLoadDB_MissingTable(t *testing.T) {
	_, err := LoadDB(context.Background(), openTestDB(t))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLoadDB_NilConnection(t *testing.T) {
	_, err := LoadDB(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}

package journal

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ksred/klear-journal/internal/database"
	"github.com/ksred/klear-journal/internal/money"
	"github.com/ksred/klear-journal/internal/types"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)

	s := NewService(db, Options{})
	s.now = func() time.Time { return fixedNow }
	return s, db
}

func createUser(t *testing.T, db *gorm.DB, username string) uint {
	t.Helper()
	user := types.User{Username: username, PasswordHash: "x"}
	require.NoError(t, db.Create(&user).Error)
	return user.ID
}

func dec(s string) *money.Fixed {
	f := money.MustParse(s)
	return &f
}

func ts(s string) *time.Time {
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &v
}

func str(s string) *string {
	return &s
}

// closedInput is a BUY of 10 @ 100 closed at 110 (PnL 100).
func closedInput() types.TradeInput {
	return types.TradeInput{
		Symbol:    "aapl",
		Side:      "buy",
		Quantity:  dec("10"),
		Price:     dec("100"),
		EntryTime: ts("2025-02-01T10:00:00Z"),
		ExitPrice: dec("110"),
		ExitTime:  ts("2025-02-03T15:00:00Z"),
		Notes:     str("breakout"),
	}
}

package pnl

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

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.NewDatabase(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) uint {
	t.Helper()
	user := types.User{Username: username, PasswordHash: "x"}
	require.NoError(t, db.Create(&user).Error)
	return user.ID
}

type tradeFixture struct {
	symbol    string
	side      types.Side
	qty       string
	price     string
	exitPrice string
	exitTime  time.Time
}

func newTrade(owner uint, s tradeFixture) *types.Trade {
	tr := &types.Trade{
		OwnerID:   owner,
		Symbol:    s.symbol,
		Side:      s.side,
		Quantity:  money.MustParse(s.qty),
		Price:     money.MustParse(s.price),
		EntryTime: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if s.exitPrice != "" {
		p := money.MustParse(s.exitPrice)
		et := s.exitTime
		tr.ExitPrice, tr.ExitTime = &p, &et
	}
	return tr
}

func seed(t *testing.T, db *gorm.DB, owner uint, fixtures ...tradeFixture) []*types.Trade {
	t.Helper()
	out := make([]*types.Trade, 0, len(fixtures))
	for _, s := range fixtures {
		tr := newTrade(owner, s)
		require.NoError(t, db.Create(tr).Error)
		out = append(out, tr)
	}
	return out
}

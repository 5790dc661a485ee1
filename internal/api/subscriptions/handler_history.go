package subscriptions

import (
	"net/http"
	"time"

	"booking-app/config"
	"booking-app/database"
	"booking-app/internal/domain/credits"

	"github.com/gin-gonic/gin"
)

// GET /ledger returns the caller's financial and credit history, newest first.
func GetLedgerHistory(c *gin.Context) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	ledger := credits.NewLedger(database.DB, config.Sched)
	entries, err := ledger.EntriesFor(userID, 200)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load ledger"})
		return
	}

	c.JSON(http.StatusOK, entries)
}

// GET /credits returns the caller's current balance.
func GetBalance(c *gin.Context) {
	userID := c.GetUint("user_id")
	if userID == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	ledger := credits.NewLedger(database.DB, config.Sched)
	balance, err := ledger.BalanceFor(userID, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load balance"})
		return
	}

	c.JSON(http.StatusOK, balance)
}

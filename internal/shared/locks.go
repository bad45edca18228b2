package shared

import (
	"fmt"
	"time"
)

// CounterpartyLockKey names the advisory lock serialising a counterparty's balance chain.
func CounterpartyLockKey(counterpartyID int64) string {
	return fmt.Sprintf("accountledger:counterparty:%d", counterpartyID)
}

// JobLockKey builds redis keys for single-flight background jobs.
func JobLockKey(job string) string {
	return fmt.Sprintf("ledgercore:job:%s:lock", job)
}

// RecurringIdempotencyKey identifies one generated period of a recurring template.
func RecurringIdempotencyKey(templateID int64, due time.Time) string {
	return fmt.Sprintf("recurring:%d:%s", templateID, due.Format("2006-01-02"))
}

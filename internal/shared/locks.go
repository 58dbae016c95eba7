package shared

import "fmt"

// MonthLockKey builds redis keys for per-month close critical sections.
func MonthLockKey(key int64) string {
	return fmt.Sprintf("ledger:month:%d:lock", key)
}

package model

import "time"

// SyncLogStatus is the terminal status of one import run.
type SyncLogStatus string

// Sync log statuses.
const (
	SyncRunning  SyncLogStatus = "Running"
	SyncComplete SyncLogStatus = "Complete"
	SyncFailed   SyncLogStatus = "Failed"
)

// SyncLog records one transaction-fetch run against the Hibiscus server.
type SyncLog struct {
	StartedAt           time.Time
	CompletedAt         time.Time
	ID                  int64
	TriggerType         string // "Scheduled" or "Manual"
	Status              SyncLogStatus
	ErrorLog            string
	AccountsProcessed   int
	TransactionsFetched int
	ErrorsCount         int
}

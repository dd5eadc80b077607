package model

import "time"

// LedgerRecord is one assembled WorkItem as stored in the work-item ledger.
type LedgerRecord struct {
	Entity      string    `json:"entity"`
	RunID       string    `json:"run_id"`
	Sample      string    `json:"sample"`
	Lane        string    `json:"lane"`
	Stage       string    `json:"stage"`
	GenomeBuild string    `json:"genome_build"`
	Digest      string    `json:"digest"`
	Item        *WorkItem `json:"item"`
	RecordedAt  time.Time `json:"recorded_at"`
}

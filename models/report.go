package models

// ResolutionReport summarizes the outcome of one ingestion batch. Ingestion
// always returns a full report; per-concept failures are counted here
// rather than raised as fatal errors.
type ResolutionReport struct {
	ConceptsSeen      int `json:"concepts_seen"`
	AutoMerged        int `json:"auto_merged"`
	JudgmentConfirmed int `json:"judgment_confirmed"`
	CreatedNew        int `json:"created_new"`
	FailedLookups     int `json:"failed_lookups"`
	FailedJudgments   int `json:"failed_judgments"`
	MergeConflicts    int `json:"merge_conflicts"`
	FailedWrites      int `json:"failed_writes"`
	EdgesCreated      int `json:"edges_created"`
	EdgesSkipped      int `json:"edges_skipped"`
	ChunksLinked      int `json:"chunks_linked"`
}

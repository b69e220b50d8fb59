package types

// AnalysisMethod describes one named analysis the engine can perform.
// The catalog of methods lives in the params package; the copy embedded
// in a PipelineRun records which method was committed.
type AnalysisMethod struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	InternalID  int    `json:"internal_id"`
	Desc        string `json:"desc,omitempty"`
}

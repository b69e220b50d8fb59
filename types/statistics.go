package types

import "time"

// StatisticPoint is the immutable datum appended to the statistics list
// when a run finishes. Points outlive their runs; they are pruned only
// by age.
type StatisticPoint struct {
	PipelineWaitingTimeSec     int64     `json:"pipeline_waiting_time_sec"`
	PipelineRunningDurationSec int64     `json:"pipeline_running_duration_sec"`
	PipelineFailed             bool      `json:"pipeline_failed"`
	PipelineMethodName         string    `json:"pipeline_methodname"`
	PipelineFinishedAt         time.Time `json:"pipeline_finished_at"`
	InputFilesAmount           int       `json:"input_files_amount"`
	InputFilesSizeBytes        int64     `json:"input_files_size_bytes"`
	ResultFileSizeBytes        *int64    `json:"result_file_size_bytes,omitempty"`
}

// Statistics is the aggregate computed over a window of statistic points.
type Statistics struct {
	StatisticsFrom *time.Time `json:"statistics_from,omitempty"`
	StatisticsTo   *time.Time `json:"statistics_to,omitempty"`

	TotalPipelineRunsAmount           int            `json:"total_pipelines_runs_amount"`
	TotalPipelineRunsSuccessfulAmount int            `json:"total_pipelines_run_successful_amount"`
	TotalPipelineRunsFailedAmount     int            `json:"total_pipelines_run_failed_amount"`
	TotalInputFilesAmountProcessed    int            `json:"total_input_files_amount_processed"`
	TotalPipelineRunsPerMethodName    map[string]int `json:"total_pipeline_runs_per_methodname"`

	AverageWaitingTimeSec      int64   `json:"average_waiting_time_sec"`
	AverageRunningTimeSec      int64   `json:"average_running_time_sec"`
	AverageFilesInputAmount    float64 `json:"average_files_input_amount"`
	AverageFilesInputSizeBytes float64 `json:"average_files_input_size_bytes"`
	AverageResultFileSizeBytes float64 `json:"average_result_file_size_bytes"`
}

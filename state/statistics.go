package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dife-bioinformatics/mekewe/iox"
	"github.com/dife-bioinformatics/mekewe/types"
)

// CreatePipelineRunStatisticPoint derives an anonymous datum from a
// finished run and appends it to the statistics list. Points carry no
// ticket and survive the run's deletion.
func (m *Manager) CreatePipelineRunStatisticPoint(ctx context.Context, run *types.PipelineRun) error {
	if run.FinishedAt == nil {
		return fmt.Errorf("statistic point for %s: run has no finish time", run.Ticket.Hex())
	}

	point := types.StatisticPoint{
		PipelineFailed:     run.State == types.StateFailed,
		PipelineFinishedAt: *run.FinishedAt,
	}
	if run.PipelineAnalysesMethod != nil {
		point.PipelineMethodName = run.PipelineAnalysesMethod.Name
	}
	if run.QueuedAt != nil && run.StartedAt != nil {
		point.PipelineWaitingTimeSec = int64(run.StartedAt.Sub(*run.QueuedAt).Seconds())
	}
	if run.StartedAt != nil {
		point.PipelineRunningDurationSec = int64(run.FinishedAt.Sub(*run.StartedAt).Seconds())
	}

	inputDir := run.InputFilesBaseDir(m.cfg.PipelineRunsCacheDir)
	amount, err := iox.CountFilesInTree(inputDir)
	if err != nil {
		return err
	}
	point.InputFilesAmount = amount
	size, err := iox.DirSizeBytes(inputDir)
	if err != nil {
		return err
	}
	point.InputFilesSizeBytes = size

	if zipPath := run.OutputZipFilePath(m.cfg.PipelineRunsCacheDir); zipPath != "" {
		zipSize, err := iox.FileSizeBytes(zipPath)
		if err != nil {
			return err
		}
		point.ResultFileSizeBytes = &zipSize
	}

	data, err := json.Marshal(point)
	if err != nil {
		return fmt.Errorf("encode statistic point: %w", err)
	}
	// Appended on the right: the persisted list reads oldest first.
	return m.store.ListPushRight(ctx, KeyPipelineStatistics, string(data))
}

// allStatisticPoints loads and decodes the full statistics list.
func (m *Manager) allStatisticPoints(ctx context.Context) ([]types.StatisticPoint, []string, error) {
	raws, err := m.store.ListRange(ctx, KeyPipelineStatistics, 0, -1)
	if err != nil {
		return nil, nil, err
	}
	points := make([]types.StatisticPoint, 0, len(raws))
	for _, raw := range raws {
		var p types.StatisticPoint
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, nil, fmt.Errorf("decode statistic point: %w", err)
		}
		points = append(points, p)
	}
	return points, raws, nil
}

// CalculateStatistics aggregates the statistic points that finished
// within the window ending daysOffset days ago and spanning daysLimit
// days before that. daysLimit zero means no lower bound.
func (m *Manager) CalculateStatistics(ctx context.Context, daysLimit, daysOffset int) (*types.Statistics, error) {
	points, _, err := m.allStatisticPoints(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	var upper, lower time.Time
	hasUpper := daysOffset > 0
	if hasUpper {
		upper = now.AddDate(0, 0, -daysOffset)
	}
	hasLower := daysLimit > 0
	if hasLower {
		base := now
		if hasUpper {
			base = upper
		}
		lower = base.AddDate(0, 0, -daysLimit)
	}

	stats := &types.Statistics{
		TotalPipelineRunsPerMethodName: map[string]int{},
	}
	var (
		sumWaitingSec  int64
		sumRunningSec  int64
		sumInputAmount int
		sumInputSize   int64
		sumResultSize  int64
		resultSamples  int
	)
	for _, p := range points {
		if hasLower && p.PipelineFinishedAt.Before(lower) {
			continue
		}
		if hasUpper && p.PipelineFinishedAt.After(upper) {
			continue
		}
		if stats.StatisticsFrom == nil || p.PipelineFinishedAt.Before(*stats.StatisticsFrom) {
			t := p.PipelineFinishedAt
			stats.StatisticsFrom = &t
		}
		if stats.StatisticsTo == nil || p.PipelineFinishedAt.After(*stats.StatisticsTo) {
			t := p.PipelineFinishedAt
			stats.StatisticsTo = &t
		}

		stats.TotalPipelineRunsAmount++
		if p.PipelineFailed {
			stats.TotalPipelineRunsFailedAmount++
		} else {
			stats.TotalPipelineRunsSuccessfulAmount++
		}
		if p.PipelineMethodName != "" {
			stats.TotalPipelineRunsPerMethodName[p.PipelineMethodName]++
		}
		stats.TotalInputFilesAmountProcessed += p.InputFilesAmount

		sumWaitingSec += p.PipelineWaitingTimeSec
		sumRunningSec += p.PipelineRunningDurationSec
		sumInputAmount += p.InputFilesAmount
		sumInputSize += p.InputFilesSizeBytes
		if p.ResultFileSizeBytes != nil {
			sumResultSize += *p.ResultFileSizeBytes
			resultSamples++
		}
	}

	if n := stats.TotalPipelineRunsAmount; n > 0 {
		stats.AverageWaitingTimeSec = sumWaitingSec / int64(n)
		stats.AverageRunningTimeSec = sumRunningSec / int64(n)
		stats.AverageFilesInputAmount = float64(sumInputAmount) / float64(n)
		stats.AverageFilesInputSizeBytes = float64(sumInputSize) / float64(n)
	}
	if resultSamples > 0 {
		stats.AverageResultFileSizeBytes = float64(sumResultSize) / float64(resultSamples)
	}
	return stats, nil
}

// RemoveExpiredStatisticPoints drops every point older than the
// configured maximum statistics age. Removal is by encoded value, so a
// point shared byte-for-byte with a duplicate goes in one pass.
func (m *Manager) RemoveExpiredStatisticPoints(ctx context.Context) (int, error) {
	if m.cfg.MaxStatisticsAgeDays <= 0 {
		return 0, nil
	}
	points, raws, err := m.allStatisticPoints(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := m.now().AddDate(0, 0, -m.cfg.MaxStatisticsAgeDays)
	removed := 0
	for i, p := range points {
		if !p.PipelineFinishedAt.Before(cutoff) {
			continue
		}
		n, err := m.store.ListRemove(ctx, KeyPipelineStatistics, 0, raws[i])
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	if removed > 0 {
		m.logger.Info("pruned aged statistic points", map[string]any{
			"removed": removed,
		})
	}
	return removed, nil
}

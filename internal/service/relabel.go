package service

import (
	"context"
	"fmt"
	"os"

	"github.com/hoanvar/LTN/internal/models"
	"github.com/hoanvar/LTN/internal/reconciler"
	"github.com/hoanvar/LTN/internal/report"

	"go.uber.org/zap"
)

// Relabel 用当前模型重标注所有已结束会话；reportPath 非空时导出 Excel 报告
func Relabel(ctx context.Context, env *BatchEnv, reportPath string) (*reconciler.Report, error) {
	scorer := NewScorer(env.Config, env.Location, env.Metrics, env.Logger)
	rep, err := reconciler.NewReconciler(env.Sessions, scorer, env.Logger).Run(ctx)
	if err != nil {
		return nil, err
	}

	if reportPath != "" {
		if err := writeReport(rep, reportPath, env); err != nil {
			return rep, err
		}
		env.Logger.Info("Relabel report written", zap.String("path", reportPath))
	}

	dist, err := env.Sessions.QualityDistribution(ctx)
	if err != nil {
		env.Logger.Warn("Failed to load quality distribution", zap.Error(err))
		return rep, nil
	}
	fields := make([]zap.Field, 0, len(models.AllQualities))
	for _, q := range models.AllQualities {
		fields = append(fields, zap.Int(string(q), dist[q]))
	}
	env.Logger.Info("Session label distribution", fields...)
	return rep, nil
}

func writeReport(rep *reconciler.Report, path string, env *BatchEnv) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close report file: %w", cerr)
		}
	}()
	return report.WriteXLSX(rep, f, env.Location)
}

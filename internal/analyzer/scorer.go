package analyzer

import (
	"math"
	"time"

	"github.com/hoanvar/LTN/internal/features"
	"github.com/hoanvar/LTN/internal/models"

	"go.uber.org/zap"
)

// Strategy 本次分析使用的评分方式（每次分析开始时确定一次）
type Strategy int

const (
	StrategyHeuristic Strategy = iota
	StrategyModel
)

func (s Strategy) String() string {
	if s == StrategyModel {
		return "model"
	}
	return "heuristic"
}

// 小时评分来源
const (
	SourceModel     = "model"
	SourceHeuristic = "heuristic"
	SourceFallback  = "fallback"
)

// Predictor 已训练模型
type Predictor interface {
	Predict(v features.Vector) (float64, error)
}

// Recorder 评分与会话事件的指标上报
type Recorder interface {
	SessionStarted()
	SessionEnded(q models.Quality)
	HourScored(source string)
}

type nopRecorder struct{}

func (nopRecorder) SessionStarted()             {}
func (nopRecorder) SessionEnded(models.Quality) {}
func (nopRecorder) HourScored(string)           {}

// HourScore 某小时的分值
type HourScore struct {
	Hour    int
	Samples int
	Score   float64
	Source  string
}

// Analysis 一次质量分析的结果
type Analysis struct {
	Strategy Strategy
	Hours    []HourScore
	Score    float64 // 小时分值的算术平均；无小时时为 0
	Quality  models.Quality
}

// Scorer 会话质量评分（在线分析与批量重标注共用）
type Scorer struct {
	predictor Predictor
	criteria  models.HeuristicCriteria
	location  *time.Location
	recorder  Recorder
	logger    *zap.Logger
}

// NewScorer 创建评分器；predictor 为 nil 时只使用启发式规则
func NewScorer(predictor Predictor, criteria models.HeuristicCriteria, loc *time.Location, recorder Recorder, logger *zap.Logger) *Scorer {
	if loc == nil {
		loc = time.UTC
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Scorer{
		predictor: predictor,
		criteria:  criteria,
		location:  loc,
		recorder:  recorder,
		logger:    logger,
	}
}

// Strategy 当前评分方式
func (s *Scorer) Strategy() Strategy {
	if s.predictor != nil {
		return StrategyModel
	}
	return StrategyHeuristic
}

// ScoreSamples 对一个会话的全部采样评分
func (s *Scorer) ScoreSamples(samples []models.Sample) Analysis {
	strategy := s.Strategy()
	result := Analysis{Strategy: strategy, Quality: models.QualityMedium}
	if len(samples) == 0 {
		return result
	}

	for _, g := range features.GroupByHour(samples, s.location) {
		means, err := g.Means()
		if err != nil {
			continue
		}
		hs := HourScore{Hour: g.Hour, Samples: len(g.Samples)}

		switch strategy {
		case StrategyModel:
			score, err := s.predictHour(g)
			if err != nil {
				// 仅当前小时退回启发式
				s.logger.Warn("Model inference failed, falling back to heuristic for hour",
					zap.Int("hour", g.Hour),
					zap.Error(err),
				)
				hs.Score = Heuristic(means, s.criteria)
				hs.Source = SourceFallback
			} else {
				hs.Score = score
				hs.Source = SourceModel
			}
		default:
			hs.Score = Heuristic(means, s.criteria)
			hs.Source = SourceHeuristic
		}

		s.recorder.HourScored(hs.Source)
		result.Hours = append(result.Hours, hs)
	}

	if len(result.Hours) == 0 {
		return result
	}

	var total float64
	for _, h := range result.Hours {
		total += h.Score
	}
	result.Score = total / float64(len(result.Hours))
	result.Quality = LabelFromScore(result.Score)
	return result
}

func (s *Scorer) predictHour(g features.HourGroup) (float64, error) {
	v, err := features.Extract(g.Samples)
	if err != nil {
		return 0, err
	}
	return s.predictor.Predict(v)
}

// Heuristic 按满足的判定条件数评分：>=3 条为 3，2 条为 2，否则为 1（边界均为闭区间）
func Heuristic(m features.Means, c models.HeuristicCriteria) float64 {
	met := 0
	if m.HeartRate >= c.HeartRateMin && m.HeartRate <= c.HeartRateMax {
		met++
	}
	if m.SpO2 >= c.SpO2Min {
		met++
	}
	if m.Temperature >= c.TemperatureMin && m.Temperature <= c.TemperatureMax {
		met++
	}
	if m.Acceleration <= c.AccelerationMax {
		met++
	}

	switch {
	case met >= 3:
		return 3
	case met == 2:
		return 2
	default:
		return 1
	}
}

// LabelFromScore 取距离最近的整数标签，按 GOOD, MEDIUM, BAD 顺序比较，平局取先出现者
// 因此 2.5 -> GOOD，1.5 -> MEDIUM
func LabelFromScore(score float64) models.Quality {
	best := models.QualityMedium
	bestDist := math.Inf(1)
	for _, q := range models.AllQualities {
		d := math.Abs(score - float64(q.Score()))
		if d < bestDist {
			best, bestDist = q, d
		}
	}
	return best
}

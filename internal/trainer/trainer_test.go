package trainer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hoanvar/LTN/internal/classifier"
	"github.com/hoanvar/LTN/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSource struct {
	sessions []models.Session
	samples  map[string][]models.Sample
	failing  map[string]bool
}

func (f *fakeSource) ListLabeledSessions(ctx context.Context) ([]models.Session, error) {
	return f.sessions, nil
}

func (f *fakeSource) ListSamples(ctx context.Context, sessionID string) ([]models.Sample, error) {
	if f.failing[sessionID] {
		return nil, errors.New("boom")
	}
	return f.samples[sessionID], nil
}

type fakeSaver struct {
	saved []*classifier.Model
}

func (f *fakeSaver) Save(m *classifier.Model) error {
	f.saved = append(f.saved, m)
	return nil
}

func qualityPtr(q models.Quality) *models.Quality { return &q }

// profile 每种标签对应一组生理指标
var profile = map[models.Quality][4]float64{
	models.QualityGood:   {70, 97, 36.7, 1.0},
	models.QualityMedium: {90, 94, 37.3, 1.2},
	models.QualityBad:    {110, 90, 38.0, 1.5},
}

func buildSource(perClass int) *fakeSource {
	src := &fakeSource{samples: map[string][]models.Sample{}, failing: map[string]bool{}}
	base := time.Date(2026, 2, 1, 22, 0, 0, 0, time.UTC)
	for _, q := range models.AllQualities {
		p := profile[q]
		for i := 0; i < perClass; i++ {
			id := fmt.Sprintf("%s-%d", q, i)
			src.sessions = append(src.sessions, models.Session{ID: id, StartTime: base, Quality: qualityPtr(q)})
			for h := 0; h < 4; h++ {
				for m := 0; m < 6; m++ {
					jitter := float64((i+h+m)%3) * 0.1
					src.samples[id] = append(src.samples[id], models.Sample{
						SessionID:    id,
						Timestamp:    base.Add(time.Duration(h)*time.Hour + time.Duration(m)*10*time.Minute),
						HeartRate:    p[0] + jitter*10,
						SpO2:         p[1] + jitter,
						Temperature:  p[2] + jitter/10,
						Acceleration: p[3] + jitter/10,
					})
				}
			}
		}
	}
	return src
}

func testParams() classifier.Params {
	p := classifier.DefaultParams()
	p.NTrees = 30
	return p
}

func TestTrain_Success(t *testing.T) {
	src := buildSource(5)
	saver := &fakeSaver{}
	tr := NewTrainer(src, saver, testParams(), time.UTC, zap.NewNop())

	res, err := tr.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 15, res.Sessions)
	assert.Equal(t, 60, res.HourlyRows)
	assert.Equal(t, 12, res.ValidationRows)
	assert.Equal(t, 48, res.TrainRows)
	assert.GreaterOrEqual(t, res.TrainAccuracy, 0.9)
	assert.GreaterOrEqual(t, res.ValidationAccuracy, 0.9)
	assert.Equal(t, TargetDistribution, res.TargetDistribution)
	require.Len(t, saver.saved, 1)
	assert.Same(t, res.Model, saver.saved[0])

	var total float64
	for _, v := range res.ValidationDistribution {
		total += v
	}
	assert.InDelta(t, 1.0, total, 1e-9)
}

func TestTrain_EmptyTrainingSetDoesNotPersist(t *testing.T) {
	saver := &fakeSaver{}
	tr := NewTrainer(&fakeSource{}, saver, testParams(), time.UTC, zap.NewNop())

	_, err := tr.Run(context.Background())
	assert.ErrorIs(t, err, ErrEmptyTrainingSet)
	assert.Empty(t, saver.saved)
}

func TestTrain_EmptyTrainingSetKeepsPreviousArtifacts(t *testing.T) {
	dir := t.TempDir()
	store := classifier.NewStore(dir)

	_, err := NewTrainer(buildSource(3), store, testParams(), time.UTC, zap.NewNop()).Run(context.Background())
	require.NoError(t, err)
	before, err := store.Load()
	require.NoError(t, err)

	_, err = NewTrainer(&fakeSource{}, store, testParams(), time.UTC, zap.NewNop()).Run(context.Background())
	require.ErrorIs(t, err, ErrEmptyTrainingSet)

	after, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, before.Meta.Fingerprint, after.Meta.Fingerprint)
}

func TestRun_SkipsFailingSession(t *testing.T) {
	src := buildSource(2)
	src.failing["GOOD-0"] = true
	tr := NewTrainer(src, &fakeSaver{}, testParams(), time.UTC, zap.NewNop())

	res, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Sessions)
	assert.Equal(t, 20, res.HourlyRows)
}

func TestBuildDataset_LabelPerHour(t *testing.T) {
	src := buildSource(1)
	var sessions []LabeledSession
	for _, s := range src.sessions {
		sessions = append(sessions, LabeledSession{Session: s, Samples: src.samples[s.ID]})
	}
	// 无标签与无采样的会话被忽略
	sessions = append(sessions,
		LabeledSession{Session: models.Session{ID: "unlabeled"}, Samples: src.samples["GOOD-0"]},
		LabeledSession{Session: models.Session{ID: "empty", Quality: qualityPtr(models.QualityGood)}},
	)

	X, y := BuildDataset(sessions, time.UTC)
	assert.Len(t, X, 12)
	assert.Equal(t, []int{3, 3, 3, 3, 2, 2, 2, 2, 1, 1, 1, 1}, y)
}

func TestSplit(t *testing.T) {
	train, val := Split(10, 0.2, 42)
	assert.Len(t, train, 8)
	assert.Len(t, val, 2)

	train2, val2 := Split(10, 0.2, 42)
	assert.Equal(t, train, train2)
	assert.Equal(t, val, val2)

	train, val = Split(1, 0.2, 42)
	assert.Len(t, train, 1)
	assert.Empty(t, val)
}

func TestBalancedClassWeights(t *testing.T) {
	w := BalancedClassWeights([]int{1, 2, 2, 3, 3, 3})
	assert.InDelta(t, 2.0, w[1], 1e-9)
	assert.InDelta(t, 1.0, w[2], 1e-9)
	assert.InDelta(t, 2.0/3.0, w[3], 1e-9)
}

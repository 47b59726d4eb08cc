package detector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velobank/fraudwatch/internal/behavior"
	"github.com/velobank/fraudwatch/pkg/models"
)

type stubDetector struct {
	name       string
	behaviours []models.SuspiciousBehaviour
	err        error
	panics     bool
}

func (s *stubDetector) Name() string { return s.name }

func (s *stubDetector) Validate(context.Context, *models.TransactionSnapshot) ([]models.SuspiciousBehaviour, error) {
	if s.panics {
		panic("boom")
	}
	return s.behaviours, s.err
}

func TestOrchestratorFlattensResults(t *testing.T) {
	one := behavior.New(behavior.KindLowAmountMicro, 2.5, 4, nil)
	two := behavior.New(behavior.KindAccountDrainHigh, 1.9, 4, nil)

	o := NewOrchestrator(zap.NewNop(),
		&stubDetector{name: "a", behaviours: []models.SuspiciousBehaviour{one}},
		&stubDetector{name: "b", behaviours: []models.SuspiciousBehaviour{two}},
		&stubDetector{name: "c"},
	)

	got := o.RunAll(context.Background(), snapshotFor(10, 100, ""))
	require.Len(t, got, 2)

	codes := map[string]bool{got[0].Code: true, got[1].Code: true}
	assert.True(t, codes[one.Code])
	assert.True(t, codes[two.Code])
}

func TestOrchestratorFailOpenOnError(t *testing.T) {
	good := behavior.New(behavior.KindLowAmountMicro, 2.5, 4, nil)

	o := NewOrchestrator(zap.NewNop(),
		&stubDetector{name: "failing", err: errors.New("backend down")},
		&stubDetector{name: "healthy", behaviours: []models.SuspiciousBehaviour{good}},
	)

	got := o.RunAll(context.Background(), snapshotFor(10, 100, ""))
	require.Len(t, got, 1)
	assert.Equal(t, good.Code, got[0].Code)
}

func TestOrchestratorFailOpenOnPanic(t *testing.T) {
	good := behavior.New(behavior.KindLowAmountMicro, 2.5, 4, nil)

	o := NewOrchestrator(zap.NewNop(),
		&stubDetector{name: "panicking", panics: true},
		&stubDetector{name: "healthy", behaviours: []models.SuspiciousBehaviour{good}},
	)

	got := o.RunAll(context.Background(), snapshotFor(10, 100, ""))
	require.Len(t, got, 1)
	assert.Equal(t, good.Code, got[0].Code)
}

func TestOrchestratorNoDetectorsNoSignal(t *testing.T) {
	o := NewOrchestrator(zap.NewNop())
	assert.Empty(t, o.RunAll(context.Background(), snapshotFor(10, 100, "")))
}

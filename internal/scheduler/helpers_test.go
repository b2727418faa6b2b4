package scheduler

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sentinel-monitor/internal/database"
	"sentinel-monitor/internal/history"
	"sentinel-monitor/internal/scheduler/mocks"
)

type testEnv struct {
	db       *gorm.DB
	recorder *history.Recorder
	ctrl     *gomock.Controller
	notifier *mocks.MockNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenMemory(uuid.NewString(), zap.NewNop())
	require.NoError(t, err)
	ctrl := gomock.NewController(t)
	return &testEnv{
		db:       db,
		recorder: history.NewRecorder(db),
		ctrl:     ctrl,
		notifier: mocks.NewMockNotifier(ctrl),
	}
}

func (e *testEnv) deps() Deps {
	return Deps{DB: e.db, Recorder: e.recorder, Notifier: e.notifier, Logger: zap.NewNop()}
}

package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/evo-gateway/internal/driver"
	"github.com/taoyao-code/evo-gateway/internal/protocol/evo"
	"github.com/taoyao-code/evo-gateway/internal/storage"
)

func openTestRecorder(t *testing.T, maxRecords int) (*Recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "recorder.db")
	r, err := Open(path, maxRecords)
	require.NoError(t, err)
	return r, path
}

func mini(seq uint64, model evo.Model) *evo.Measurement {
	return &evo.Measurement{
		Model:     model,
		Kind:      evo.KindMini,
		Seq:       seq,
		Timestamp: time.Now(),
		Rows:      1,
		Cols:      1,
		Unit:      evo.UnitMeters,
		Values:    []evo.Reading{evo.Reading(seq)},
	}
}

func TestRecorder_RetentionAndOrder(t *testing.T) {
	r, _ := openTestRecorder(t, 3)
	defer r.Close()
	sink := storage.NewSink("recorder", r)
	ctx := context.Background()

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, sink.Publish(ctx, mini(i, evo.ModelEvoMini)))
	}

	got, err := r.RecentMeasurements(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{5, 4, 3}, []int64{got[0].Seq, got[1].Seq, got[2].Seq})
	assert.Equal(t, int64(5), got[0].ID)

	got, err = r.RecentMeasurements(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRecorder_FilterByModel(t *testing.T) {
	r, _ := openTestRecorder(t, 100)
	defer r.Close()
	ctx := context.Background()
	sink := storage.NewSink("recorder", r)

	require.NoError(t, sink.Publish(ctx, mini(1, evo.ModelEvoMini)))
	require.NoError(t, sink.Publish(ctx, mini(2, evo.ModelEvo64px)))
	require.NoError(t, sink.Publish(ctx, mini(3, evo.ModelEvoMini)))

	got, err := r.RecentMeasurements(ctx, string(evo.ModelEvo64px), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].Seq)
}

func TestRecorder_CommandsPersist(t *testing.T) {
	r, path := openTestRecorder(t, 100)
	ctx := context.Background()
	sink := storage.NewSink("recorder", r)

	ex := &driver.Exchange{
		ID:        "b7c1d7a0-0000-4000-8000-000000000001",
		Model:     evo.ModelEvo64px,
		Command:   evo.CmdStreamStart,
		Opcode:    []byte{0x00, 0x52, 0x02, 0x01, 0xDF},
		State:     driver.StateNacked,
		StartedAt: time.Now(),
		Error:     "nack",
	}
	require.NoError(t, sink.RecordCommand(ctx, ex))
	require.NoError(t, r.Close())

	// 重新打开后记录仍在
	r, err := Open(path, 100)
	require.NoError(t, err)
	defer r.Close()
	logs, err := r.RecentCommandLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "nacked", logs[0].State)
	assert.Equal(t, "00520201df", logs[0].Opcode)
	require.NotNil(t, logs[0].Error)
	assert.Equal(t, "nack", *logs[0].Error)
}

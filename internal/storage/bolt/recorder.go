package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/taoyao-code/evo-gateway/internal/storage"
	"github.com/taoyao-code/evo-gateway/internal/storage/models"
)

var (
	measurementsBucket = []byte("measurements")
	commandsBucket     = []byte("commands")
)

// Recorder 本地 bbolt 历史记录器。键为桶内自增序号（大端），值为 JSON；
// 每个桶最多保留 maxRecords 条，超出时删除最旧记录。
type Recorder struct {
	db         *bbolt.DB
	maxRecords uint64
}

var _ storage.HistoryRepo = (*Recorder)(nil)

// Open 打开（必要时创建）记录文件
func Open(path string, maxRecords int) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open recorder %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{measurementsBucket, commandsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	if maxRecords <= 0 {
		maxRecords = 10000
	}
	return &Recorder{db: db, maxRecords: uint64(maxRecords)}, nil
}

// Close 关闭记录文件
func (r *Recorder) Close() error {
	return r.db.Close()
}

// SaveMeasurement 实现 storage.HistoryRepo
func (r *Recorder) SaveMeasurement(_ context.Context, rec *models.Measurement) error {
	return r.put(measurementsBucket, func(id uint64) any {
		rec.ID = int64(id)
		return rec
	})
}

// SaveCommandLog 实现 storage.HistoryRepo
func (r *Recorder) SaveCommandLog(_ context.Context, rec *models.CommandLog) error {
	return r.put(commandsBucket, func(id uint64) any {
		rec.ID = int64(id)
		return rec
	})
}

// RecentMeasurements 实现 storage.HistoryRepo
func (r *Recorder) RecentMeasurements(_ context.Context, model string, limit int) ([]models.Measurement, error) {
	var out []models.Measurement
	err := r.scan(measurementsBucket, limit, func(v []byte) (bool, error) {
		var rec models.Measurement
		if err := json.Unmarshal(v, &rec); err != nil {
			return false, err
		}
		if model != "" && rec.Model != model {
			return false, nil
		}
		out = append(out, rec)
		return true, nil
	})
	return out, err
}

// RecentCommandLogs 实现 storage.HistoryRepo
func (r *Recorder) RecentCommandLogs(_ context.Context, limit int) ([]models.CommandLog, error) {
	var out []models.CommandLog
	err := r.scan(commandsBucket, limit, func(v []byte) (bool, error) {
		var rec models.CommandLog
		if err := json.Unmarshal(v, &rec); err != nil {
			return false, err
		}
		out = append(out, rec)
		return true, nil
	})
	return out, err
}

func (r *Recorder) put(bucket []byte, value func(id uint64) any) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket not found: %s", bucket)
		}
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(value(id))
		if err != nil {
			return err
		}
		if err := b.Put(itob(id), data); err != nil {
			return err
		}
		if id > r.maxRecords {
			return b.Delete(itob(id - r.maxRecords))
		}
		return nil
	})
}

// scan 从最新记录向前遍历，fn 返回 true 的记录计入 limit
func (r *Recorder) scan(bucket []byte, limit int, fn func(v []byte) (bool, error)) error {
	if limit <= 0 {
		limit = 50
	}
	return r.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket not found: %s", bucket)
		}
		c := b.Cursor()
		n := 0
		for k, v := c.Last(); k != nil && n < limit; k, v = c.Prev() {
			ok, err := fn(v)
			if err != nil {
				return err
			}
			if ok {
				n++
			}
		}
		return nil
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

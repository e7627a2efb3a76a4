package registry

import (
	"context"
	"sort"
	"time"

	"github.com/gruntwork-io/clusterflow/internal/cluster"
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

// MemoryRegistry is an in-process Store, used by tests and dry runs.
type MemoryRegistry struct {
	records *xsync.MapOf[string, cluster.Record]
	prober  Prober
	now     func() time.Time
}

// NewMemoryRegistry returns an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		records: xsync.NewMapOf[string, cluster.Record](),
		now:     time.Now,
	}
}

// WithProber sets the prober used by RefreshStatusHandle.
func (reg *MemoryRegistry) WithProber(prober Prober) *MemoryRegistry {
	reg.prober = prober
	return reg
}

func (reg *MemoryRegistry) Get(_ context.Context, name string) (*cluster.Record, error) {
	record, ok := reg.records.Load(name)
	if !ok {
		return nil, ErrNotFound
	}

	return &record, nil
}

func (reg *MemoryRegistry) List(_ context.Context) ([]*cluster.Record, error) {
	var records []*cluster.Record

	reg.records.Range(func(_ string, record cluster.Record) bool {
		records = append(records, &record)
		return true
	})

	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })

	return records, nil
}

func (reg *MemoryRegistry) Upsert(_ context.Context, record *cluster.Record) error {
	reg.records.Store(record.Name, *record)
	return nil
}

func (reg *MemoryRegistry) SetStatus(_ context.Context, name string, status cluster.Status) error {
	return reg.update(name, func(record *cluster.Record) { record.Status = status })
}

func (reg *MemoryRegistry) SetAutostop(_ context.Context, name string, minutes int) error {
	return reg.update(name, func(record *cluster.Record) { record.AutostopMinutes = minutes })
}

func (reg *MemoryRegistry) UpdateLastUse(_ context.Context, name string) error {
	now := reg.now()
	return reg.update(name, func(record *cluster.Record) { record.LastUse = now })
}

func (reg *MemoryRegistry) Remove(_ context.Context, name string) error {
	reg.records.Delete(name)
	return nil
}

func (reg *MemoryRegistry) GetHandle(ctx context.Context, name string) (*cluster.Handle, error) {
	record, err := reg.Get(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}

		return nil, err
	}

	return record.Handle, nil
}

func (reg *MemoryRegistry) RefreshStatusHandle(ctx context.Context, name string) (cluster.Status, *cluster.Handle, error) {
	return refresh(ctx, reg, reg.prober, name)
}

func (reg *MemoryRegistry) Close() error {
	return nil
}

func (reg *MemoryRegistry) update(name string, fn func(record *cluster.Record)) error {
	var found bool

	reg.records.Compute(name, func(record cluster.Record, loaded bool) (cluster.Record, bool) {
		if !loaded {
			return record, true
		}

		found = true

		fn(&record)

		return record, false
	})

	if !found {
		return ErrNotFound
	}

	return nil
}

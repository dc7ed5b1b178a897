package s3select

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hugr-lab/s3select-go/filter"
	"github.com/hugr-lab/s3select-go/internal/msgpack"
	"github.com/hugr-lab/s3select-go/internal/scanctx"
	"github.com/hugr-lab/s3select-go/record"
	"github.com/hugr-lab/s3select-go/schema"
)

// Task is a serializable scan of one object, planned in one process and
// executed in another.
type Task struct {
	ID      string         `msgpack:"id"`
	Bucket  string         `msgpack:"bucket"`
	Key     string         `msgpack:"key"`
	Fields  []schema.Field `msgpack:"fields"`
	Columns []string       `msgpack:"columns,omitempty"`
	// Filters holds the predicates in filter.MarshalPredicates form.
	Filters []byte `msgpack:"filters,omitempty"`
}

// NewTask captures in as a task with a fresh ID.
func NewTask(in RequestInput) (Task, error) {
	if in.Schema == nil {
		return Task{}, fmt.Errorf("%w: schema is required", ErrInvalidConfig)
	}
	t := Task{
		ID:      uuid.NewString(),
		Bucket:  in.Bucket,
		Key:     in.Key,
		Fields:  in.Schema.Fields(),
		Columns: in.Columns,
	}
	if len(in.Filters) > 0 {
		data, err := filter.MarshalPredicates(in.Filters)
		if err != nil {
			return Task{}, fmt.Errorf("task %s: %w", t.ID, err)
		}
		t.Filters = data
	}
	return t, nil
}

// Input restores the scan the task describes.
func (t Task) Input() (RequestInput, error) {
	s, err := schema.New(t.Fields...)
	if err != nil {
		return RequestInput{}, fmt.Errorf("task %s: %w", t.ID, err)
	}
	in := RequestInput{
		Bucket:  t.Bucket,
		Key:     t.Key,
		Schema:  s,
		Columns: t.Columns,
	}
	if len(t.Filters) > 0 {
		in.Filters, err = filter.UnmarshalPredicates(t.Filters)
		if err != nil {
			return RequestInput{}, fmt.Errorf("task %s: %w", t.ID, err)
		}
	}
	return in, nil
}

// EncodeTask serializes t to MessagePack.
func EncodeTask(t Task) ([]byte, error) {
	return msgpack.Encode(t)
}

// DecodeTask restores a task written by EncodeTask.
func DecodeTask(data []byte) (Task, error) {
	var t Task
	if err := msgpack.Decode(data, &t); err != nil {
		return Task{}, err
	}
	if _, err := uuid.Parse(t.ID); err != nil {
		return Task{}, fmt.Errorf("task id %q: %w", t.ID, err)
	}
	return t, nil
}

// ScanTask runs a decoded task. The task ID becomes the scan ID so log
// lines on both sides can be matched.
func (s *Scanner) ScanTask(ctx context.Context, t Task) (*record.RowReader, error) {
	in, err := t.Input()
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Scan task", "task_id", t.ID)
	return s.Scan(scanctx.WithScanID(ctx, t.ID), in)
}

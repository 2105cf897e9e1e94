package publish

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/oilflow/internal/workflow"
)

func sampleEvents() []workflow.Event {
	return []workflow.Event{
		{ID: "e1", Seq: 1, OrderID: "DO-001A", Stage: workflow.StageApproval, Status: workflow.StatusApproved},
		{ID: "e2", Seq: 2, DONumber: "DO-002A", Stage: workflow.StageApproval, Status: workflow.StatusRejected},
	}
}

func TestFilePublish(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	f, err := NewFile(path)
	require.NoError(t, err)

	require.NoError(t, f.Publish(context.Background(), sampleEvents()...))
	require.NoError(t, f.Publish(context.Background(), sampleEvents()[0]))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var got []workflow.Event
	s := bufio.NewScanner(file)
	for s.Scan() {
		var e workflow.Event
		require.NoError(t, json.Unmarshal(s.Bytes(), &e))
		got = append(got, e)
	}
	require.NoError(t, s.Err())
	require.Len(t, got, 3)
	assert.Equal(t, "e2", got[1].ID)
	assert.Equal(t, "e1", got[2].ID)
}

type fakeWriter struct {
	msgs   []kafka.Message
	fail   bool
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("broker down")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublishKeysByOrder(t *testing.T) {
	fw := &fakeWriter{}
	k := newKafkaWith(fw)

	require.NoError(t, k.Publish(context.Background(), sampleEvents()...))
	require.Len(t, fw.msgs, 2)
	assert.Equal(t, "DO-001A", string(fw.msgs[0].Key))
	assert.Equal(t, "DO-002A", string(fw.msgs[1].Key))
	assert.Equal(t, "stage", fw.msgs[0].Headers[0].Key)
	assert.Equal(t, "Approval Of Order", string(fw.msgs[0].Headers[0].Value))

	var e workflow.Event
	require.NoError(t, json.Unmarshal(fw.msgs[1].Value, &e))
	assert.Equal(t, workflow.StatusRejected, e.Status)

	require.NoError(t, k.Publish(context.Background()))
	assert.Len(t, fw.msgs, 2)

	require.NoError(t, k.Close())
	assert.True(t, fw.closed)
}

func TestKafkaPublishError(t *testing.T) {
	k := newKafkaWith(&fakeWriter{fail: true})
	err := k.Publish(context.Background(), sampleEvents()...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestMultiAttemptsEverySink(t *testing.T) {
	bad := newKafkaWith(&fakeWriter{fail: true})
	good := &fakeWriter{}
	m := NewMulti(bad, newKafkaWith(good))

	err := m.Publish(context.Background(), sampleEvents()...)
	require.Error(t, err)
	assert.Len(t, good.msgs, 2)
	require.NoError(t, m.Close())
	assert.True(t, good.closed)
}

func TestNewFromConfig(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, p)
	assert.NoError(t, p.Publish(context.Background(), sampleEvents()...))

	p, err = New(Config{FilePath: filepath.Join(t.TempDir(), "e.jsonl")})
	require.NoError(t, err)
	assert.IsType(t, &File{}, p)

	p, err = New(Config{FilePath: filepath.Join(t.TempDir(), "e.jsonl"), KafkaBrokers: "localhost:9092", KafkaTopic: "oilflow.events"})
	require.NoError(t, err)
	assert.IsType(t, &Multi{}, p)

	_, err = New(Config{KafkaBrokers: "localhost:9092"})
	assert.Error(t, err)
}

package sim

import (
	"encoding/json"
	"testing"

	"storagesim/internal/degradation"
	"storagesim/internal/state"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	msgs   []published
	closed bool
}

func (f *fakePublisher) publish(topic string, payload []byte) error {
	f.msgs = append(f.msgs, published{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) close() { f.closed = true }

func TestMQTTWriterTopics(t *testing.T) {
	pub := &fakePublisher{}
	w := newMQTTWriter(pub, "sims/")
	rows := []state.SystemState{
		{SystemID: "plant", StorageID: "battery", SOC: 0.5},
		{SystemID: "plant", StorageID: "total", SOC: 0.5},
	}
	if err := w.WriteStates(rows); err != nil {
		t.Fatalf("WriteStates: %v", err)
	}
	if err := w.WriteDegradation("battery", []degradation.Entry{{Time: 1, Cumulative: 0.1}}); err != nil {
		t.Fatalf("WriteDegradation: %v", err)
	}
	want := []string{"sims/plant/battery", "sims/plant/total", "sims/degradation/battery"}
	if len(pub.msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(pub.msgs))
	}
	for i, topic := range want {
		if pub.msgs[i].topic != topic {
			t.Errorf("message %d topic = %s, want %s", i, pub.msgs[i].topic, topic)
		}
	}
	var got state.SystemState
	if err := json.Unmarshal(pub.msgs[0].payload, &got); err != nil || got.SOC != 0.5 {
		t.Fatalf("unexpected payload %s (%v)", pub.msgs[0].payload, err)
	}
	_ = w.Close()
	if !pub.closed {
		t.Fatalf("expected publisher to be closed")
	}
}

func TestMQTTWriterDefaultPrefix(t *testing.T) {
	if w := newMQTTWriter(&fakePublisher{}, ""); w.prefix != "storagesim" {
		t.Fatalf("prefix = %s", w.prefix)
	}
}

func TestBrokerURL(t *testing.T) {
	cases := map[string]string{
		"localhost":         "tcp://localhost:1883",
		"broker:8883":       "tcp://broker:8883",
		"ssl://broker:8883": "ssl://broker:8883",
	}
	for in, want := range cases {
		if got := brokerURL(in); got != want {
			t.Errorf("brokerURL(%q) = %s, want %s", in, got, want)
		}
	}
}

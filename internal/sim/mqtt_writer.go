package sim

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"storagesim/internal/degradation"
	"storagesim/internal/state"
)

const mqttQoS = 0

type mqttPublisher interface {
	publish(topic string, payload []byte) error
	close()
}

type pahoPublisher struct {
	client mqtt.Client
}

func (p *pahoPublisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, mqttQoS, false, payload)
	token.Wait()
	return token.Error()
}

func (p *pahoPublisher) close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// MQTTWriter publishes every state row as JSON to
// <prefix>/<system_id>/<storage_id>.
type MQTTWriter struct {
	pub    mqttPublisher
	prefix string
}

// NewMQTTWriter connects to broker ("host", "host:port" or a full URL).
func NewMQTTWriter(broker, clientID, prefix string) (*MQTTWriter, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	slog.Info("connected to mqtt broker", "broker", broker)
	return newMQTTWriter(&pahoPublisher{client: client}, prefix), nil
}

func newMQTTWriter(pub mqttPublisher, prefix string) *MQTTWriter {
	if prefix == "" {
		prefix = "storagesim"
	}
	return &MQTTWriter{pub: pub, prefix: strings.TrimSuffix(prefix, "/")}
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	if !strings.Contains(broker, ":") {
		broker += ":1883"
	}
	return "tcp://" + broker
}

func (w *MQTTWriter) topic(parts ...string) string {
	return w.prefix + "/" + strings.Join(parts, "/")
}

// WriteState publishes a single state row.
func (w *MQTTWriter) WriteState(row state.SystemState) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return err
	}
	return w.pub.publish(w.topic(row.SystemID, row.StorageID), payload)
}

// WriteStates publishes multiple state rows.
func (w *MQTTWriter) WriteStates(rows []state.SystemState) error {
	for _, r := range rows {
		if err := w.WriteState(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteDegradation publishes the full history as one JSON array to
// <prefix>/degradation/<storage_id>.
func (w *MQTTWriter) WriteDegradation(storage string, entries []degradation.Entry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return w.pub.publish(w.topic("degradation", storage), payload)
}

// Close disconnects from the broker.
func (w *MQTTWriter) Close() error {
	w.pub.close()
	return nil
}

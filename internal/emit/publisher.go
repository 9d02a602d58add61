// Package emit pushes finished job results to downstream consumers (coaching
// apps, dashboards) so they do not have to poll the API.
package emit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher delivers a finished job's result document. Delivery is
// best-effort: the job outcome is already persisted before Publish is called,
// and a failed publish never fails the job.
type Publisher interface {
	Publish(ctx context.Context, jobID string, payload []byte) error
	Close()
}

// ResultTopic returns the topic a job's result document is published to.
func ResultTopic(jobID string) string {
	return "formsight/results/" + jobID
}

// StubPublisher logs and drops. Used when no broker is configured.
type StubPublisher struct {
	logger *slog.Logger
}

func NewStubPublisher(logger *slog.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) Publish(_ context.Context, jobID string, payload []byte) error {
	if p.logger != nil {
		p.logger.Debug("result publish skipped: no broker configured",
			"job_id", jobID, "bytes", len(payload))
	}
	return nil
}

func (p *StubPublisher) Close() {}

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 5 * time.Second
)

// MQTTPublisher publishes result documents to an MQTT broker at QoS 1, one
// topic per job. The connection auto-reconnects; publishes attempted while
// disconnected fail and are logged by the caller rather than queued.
type MQTTPublisher struct {
	client mqtt.Client
	broker string
	logger *slog.Logger
}

func NewMQTTPublisher(broker, clientID string, logger *slog.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", broker))
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connected", "broker", broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, auto-reconnecting", "broker", broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s failed: %w", broker, err)
	}

	return &MQTTPublisher{client: client, broker: broker, logger: logger}, nil
}

func (p *MQTTPublisher) Publish(ctx context.Context, jobID string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	topic := ResultTopic(jobID)
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s failed: %w", topic, err)
	}

	p.logger.Debug("result published", "topic", topic, "bytes", len(payload))
	return nil
}

func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
	p.logger.Info("mqtt disconnected")
}

// Package publish sends decoded RDS station data to an MQTT broker.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"go-fm-demod/internal/config"
	"go-fm-demod/internal/rds"
)

const queueLen = 16

// publisher is the part of mqtt.Client the RDS publisher uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// StationPayload is the JSON document published for a station.
type StationPayload struct {
	Timestamp int64     `json:"timestamp"`
	Channel   string    `json:"channel"`
	PI        string    `json:"pi"`
	CallSign  string    `json:"callSign,omitempty"`
	PS        string    `json:"ps"`
	RT        string    `json:"rt,omitempty"`
	PTY       int       `json:"pty"`
	PTYName   string    `json:"ptyName"`
	PTYN      string    `json:"ptyn,omitempty"`
	TP        bool      `json:"tp"`
	TA        bool      `json:"ta"`
	Music     bool      `json:"music"`
	AF        []float64 `json:"af,omitempty"`
	ECC       uint8     `json:"ecc,omitempty"`
	ClockTime string    `json:"clockTime,omitempty"`
}

// RDSPublisher publishes a channel's station data whenever it changes.
// Handle runs on the demodulator goroutine; publishing happens in Run.
type RDSPublisher struct {
	client  publisher
	topic   string
	qos     byte
	retain  bool
	channel uuid.UUID

	last    rds.Station
	started bool
	queue   chan StationPayload
	dropped atomic.Uint64
}

// NewRDSPublisher connects to the broker in cfg.
func NewRDSPublisher(cfg config.MQTTConfig, channel uuid.UUID) (*RDSPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID + "_" + channel.String()[:8])
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Println("[MQTT] connected to broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("[MQTT] connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.Printf("[MQTT] publishing RDS to %s", cfg.Broker)
	return newRDSPublisher(client, cfg.TopicPrefix, cfg.QoS, cfg.Retain, channel), nil
}

func newRDSPublisher(client publisher, prefix string, qos byte, retain bool, channel uuid.UUID) *RDSPublisher {
	return &RDSPublisher{
		client:  client,
		topic:   prefix + "/" + channel.String() + "/station",
		qos:     qos,
		retain:  retain,
		channel: channel,
		queue:   make(chan StationPayload, queueLen),
	}
}

// Dropped returns the number of documents lost to a full queue.
func (p *RDSPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Topic returns the topic station documents are published on.
func (p *RDSPublisher) Topic() string {
	return p.topic
}

// Handle is an RDS group handler. It queues a document when the station data
// changed and never blocks.
func (p *RDSPublisher) Handle(_ rds.Group, st rds.Station) {
	if !st.PSComplete && !st.RTComplete {
		return
	}
	if p.started && sameStation(p.last, st) {
		return
	}
	p.last = st
	p.started = true
	select {
	case p.queue <- p.payload(st):
	default:
		p.dropped.Add(1)
	}
}

func sameStation(a, b rds.Station) bool {
	return a.PI == b.PI && a.PS == b.PS && a.RT == b.RT && a.PTY == b.PTY &&
		a.PTYN == b.PTYN && a.TP == b.TP && a.TA == b.TA && a.Music == b.Music &&
		a.ECC == b.ECC && a.ClockTime.Equal(b.ClockTime) && slices.Equal(a.AF, b.AF)
}

func (p *RDSPublisher) payload(st rds.Station) StationPayload {
	doc := StationPayload{
		Timestamp: time.Now().Unix(),
		Channel:   p.channel.String(),
		PI:        fmt.Sprintf("%04X", st.PI),
		CallSign:  st.CallSign,
		PS:        st.PS,
		PTY:       st.PTY,
		PTYName:   st.PTYName,
		PTYN:      st.PTYN,
		TP:        st.TP,
		TA:        st.TA,
		Music:     st.Music,
		AF:        slices.Clone(st.AF),
		ECC:       st.ECC,
	}
	if st.RTComplete {
		doc.RT = st.RT
	}
	if !st.ClockTime.IsZero() {
		doc.ClockTime = st.ClockTime.UTC().Format(time.RFC3339)
	}
	return doc
}

// Run publishes queued documents until ctx is cancelled, then disconnects.
func (p *RDSPublisher) Run(ctx context.Context) {
	defer p.client.Disconnect(250)
	for {
		select {
		case <-ctx.Done():
			log.Println("[MQTT] RDS publisher stopped")
			return
		case doc := <-p.queue:
			p.publish(doc)
		}
	}
}

func (p *RDSPublisher) publish(doc StationPayload) {
	data, err := json.Marshal(doc)
	if err != nil {
		log.Printf("[MQTT] failed to encode station: %v", err)
		return
	}
	token := p.client.Publish(p.topic, p.qos, p.retain, data)
	if !token.WaitTimeout(5 * time.Second) {
		log.Printf("[MQTT] publish to %s timed out", p.topic)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("[MQTT] publish to %s failed: %v", p.topic, err)
	}
}

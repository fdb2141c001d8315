// Package metrics exports demodulator status as Prometheus gauges.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go-fm-demod/internal/demod"
	"go-fm-demod/internal/dsp"
)

// Exporter holds the collectors for one or more channels, all labelled with
// the channel ID and mode.
type Exporter struct {
	registry *prometheus.Registry

	running      *prometheus.GaugeVec
	squelchOpen  *prometheus.GaugeVec
	squelchState *prometheus.GaugeVec
	powerAvg     *prometheus.GaugeVec
	powerPeak    *prometheus.GaugeVec
	rebuilds     *prometheus.GaugeVec
	audioDropped *prometheus.GaugeVec
	audioClipped *prometheus.GaugeVec
	pilotLocked  *prometheus.GaugeVec
	pilotLevel   *prometheus.GaugeVec
	stereo       *prometheus.GaugeVec
	rdsSynced    *prometheus.GaugeVec
	rdsQuality   *prometheus.GaugeVec
	rdsGroups    *prometheus.GaugeVec
	ctcssTone    *prometheus.GaugeVec
	tapDropped   prometheus.Gauge
}

var channelLabels = []string{"channel", "mode"}

// NewExporter creates an exporter with its own registry.
func NewExporter(namespace string) *Exporter {
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, channelLabels)
	}
	e := &Exporter{
		registry:     prometheus.NewRegistry(),
		running:      gauge("running", "1 while the demodulator accepts IQ"),
		squelchOpen:  gauge("squelch_open", "1 while audio passes the squelch"),
		squelchState: gauge("squelch_state", "Squelch state: 0 closed, 1 opening, 2 open, 3 closing"),
		powerAvg:     gauge("channel_power_avg_db", "Average channel power since the last scrape (dBFS)"),
		powerPeak:    gauge("channel_power_peak_db", "Peak channel power since the last scrape (dBFS)"),
		rebuilds:     gauge("rebuilds_total", "Configuration changes applied"),
		audioDropped: gauge("audio_dropped_frames_total", "Audio frames discarded by the output FIFO"),
		audioClipped: gauge("audio_clipped_samples_total", "Audio samples clipped to 16 bit"),
		pilotLocked:  gauge("pilot_locked", "1 while the 19 kHz pilot PLL is locked"),
		pilotLevel:   gauge("pilot_level", "Pilot amplitude relative to full deviation"),
		stereo:       gauge("stereo", "1 while decoding stereo"),
		rdsSynced:    gauge("rds_synced", "1 while the RDS decoder is block synchronized"),
		rdsQuality:   gauge("rds_quality", "Share of good RDS blocks"),
		rdsGroups:    gauge("rds_groups_total", "RDS groups decoded"),
		ctcssTone:    gauge("ctcss_tone_hz", "Detected CTCSS tone, 0 when none"),
		tapDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "audio_sink_dropped_blocks_total",
			Help:      "PCM blocks not delivered to a slow audio sink",
		}),
	}
	e.registry.MustRegister(
		e.running, e.squelchOpen, e.squelchState, e.powerAvg, e.powerPeak,
		e.rebuilds, e.audioDropped, e.audioClipped,
		e.pilotLocked, e.pilotLevel, e.stereo,
		e.rdsSynced, e.rdsQuality, e.rdsGroups, e.ctcssTone, e.tapDropped,
	)
	return e
}

// Registry returns the registry holding the collectors.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Update records a status snapshot and the power levels read since the
// previous update.
func (e *Exporter) Update(st demod.Status, levels demod.MagSqLevels) {
	labels := prometheus.Labels{"channel": st.Channel.String(), "mode": st.Mode}
	e.running.With(labels).Set(flag(st.Running))
	e.squelchOpen.With(labels).Set(flag(st.SquelchOpen))
	e.squelchState.With(labels).Set(float64(st.Squelch))
	e.powerAvg.With(labels).Set(dsp.PowerDB(levels.Avg))
	e.powerPeak.With(labels).Set(dsp.PowerDB(levels.Peak))
	e.rebuilds.With(labels).Set(float64(st.Rebuilds))
	e.audioDropped.With(labels).Set(float64(st.AudioDropped))
	e.audioClipped.With(labels).Set(float64(st.AudioClipped))

	switch st.Mode {
	case "bfm":
		e.pilotLocked.With(labels).Set(flag(st.PilotLocked))
		e.pilotLevel.With(labels).Set(st.PilotLevel)
		e.stereo.With(labels).Set(flag(st.Stereo))
		if st.RDS != nil {
			e.rdsSynced.With(labels).Set(flag(st.RDS.Synced))
			e.rdsQuality.With(labels).Set(st.RDS.Quality)
			e.rdsGroups.With(labels).Set(float64(st.RDS.Groups))
		}
	case "nfm":
		e.ctcssTone.With(labels).Set(st.CTCSSTone)
	}
}

// SetSinkDropped records the audio fanout's dropped block count.
func (e *Exporter) SetSinkDropped(n uint64) {
	e.tapDropped.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve listens on addr until ctx is cancelled.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Printf("[METRICS] serving on http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

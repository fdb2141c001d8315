package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-fm-demod/internal/demod"
	"go-fm-demod/internal/dsp"
	"go-fm-demod/internal/rds"
)

func TestExporter_BFM(t *testing.T) {
	e := NewExporter("fmdemod")
	id := uuid.New()
	e.Update(demod.Status{
		Channel:     id,
		Mode:        "bfm",
		Running:     true,
		Squelch:     dsp.SquelchOpen,
		SquelchOpen: true,
		Rebuilds:    3,
		PilotLocked: true,
		PilotLevel:  0.09,
		Stereo:      true,
		RDS:         &rds.Status{Synced: true, Quality: 0.98, Groups: 42},
	}, demod.MagSqLevels{Avg: 0.1, Peak: 1, Count: 100})

	ch := id.String()
	assert.Equal(t, 1.0, testutil.ToFloat64(e.running.WithLabelValues(ch, "bfm")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.squelchState.WithLabelValues(ch, "bfm")))
	assert.InDelta(t, -10, testutil.ToFloat64(e.powerAvg.WithLabelValues(ch, "bfm")), 1e-9)
	assert.Equal(t, 0.0, testutil.ToFloat64(e.powerPeak.WithLabelValues(ch, "bfm")))
	assert.Equal(t, 3.0, testutil.ToFloat64(e.rebuilds.WithLabelValues(ch, "bfm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.stereo.WithLabelValues(ch, "bfm")))
	assert.Equal(t, 42.0, testutil.ToFloat64(e.rdsGroups.WithLabelValues(ch, "bfm")))
	assert.Zero(t, testutil.CollectAndCount(e.ctcssTone))
}

func TestExporter_NFM(t *testing.T) {
	e := NewExporter("fmdemod")
	id := uuid.New()
	e.Update(demod.Status{Channel: id, Mode: "nfm", CTCSSIndex: 11, CTCSSTone: 100}, demod.MagSqLevels{})
	assert.Equal(t, 100.0, testutil.ToFloat64(e.ctcssTone.WithLabelValues(id.String(), "nfm")))
	assert.Equal(t, -120.0, testutil.ToFloat64(e.powerAvg.WithLabelValues(id.String(), "nfm")))
	assert.Zero(t, testutil.CollectAndCount(e.pilotLocked))
}

func TestExporter_Handler(t *testing.T) {
	e := NewExporter("fmdemod")
	e.Update(demod.Status{Channel: uuid.New(), Mode: "wfm", Running: true}, demod.MagSqLevels{Avg: 1, Peak: 1})
	e.SetSinkDropped(5)

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `fmdemod_running{channel=`)
	assert.Contains(t, string(body), `mode="wfm"`)
	assert.Contains(t, string(body), "fmdemod_audio_sink_dropped_blocks_total 5")
}

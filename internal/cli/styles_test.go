package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go-fm-demod/internal/demod"
	"go-fm-demod/internal/dsp"
	"go-fm-demod/internal/rds"
)

func TestStatusLine_BFM(t *testing.T) {
	st := demod.Status{
		Mode:        "bfm",
		Squelch:     dsp.SquelchOpen,
		PilotLocked: true,
		Stereo:      true,
		RDS: &rds.Status{
			Synced: true,
			Station: rds.Station{
				PI:         0xC201,
				PS:         "TESTFM 1",
				PTYName:    "Pop Music",
				RT:         "Now playing   ",
				RTComplete: true,
			},
		},
	}
	line := StatusLine(st, demod.MagSqLevels{Avg: 0.01})
	for _, want := range []string{"BFM", "-20.0 dB", "open", "stereo", "TESTFM 1", "C201", "Pop Music", "Now playing"} {
		assert.Contains(t, line, want)
	}
	assert.NotContains(t, line, "dropped")
}

func TestStatusLine_BFMNoSync(t *testing.T) {
	st := demod.Status{Mode: "bfm", RDS: &rds.Status{}}
	line := StatusLine(st, demod.MagSqLevels{Avg: 1e-13})
	assert.Contains(t, line, "mono")
	assert.Contains(t, line, "rds --")
	assert.Contains(t, line, "-120.0 dB")
	assert.Contains(t, line, "closed")
}

func TestStatusLine_NFM(t *testing.T) {
	st := demod.Status{Mode: "nfm", Squelch: dsp.SquelchClosing, CTCSSIndex: 11, CTCSSTone: 100, AudioDropped: 4}
	line := StatusLine(st, demod.MagSqLevels{Avg: 1})
	assert.Contains(t, line, "NFM")
	assert.Contains(t, line, "closing")
	assert.Contains(t, line, "100.0 Hz")
	assert.Contains(t, line, "dropped 4 clipped 0")

	st.CTCSSIndex = -1
	assert.NotContains(t, StatusLine(st, demod.MagSqLevels{}), "ctcss")
}

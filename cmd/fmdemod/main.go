package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"go-fm-demod/internal/audio"
	"go-fm-demod/internal/cli"
	"go-fm-demod/internal/config"
	"go-fm-demod/internal/demod"
	"go-fm-demod/internal/iq"
	"go-fm-demod/internal/metrics"
	"go-fm-demod/internal/publish"
	"go-fm-demod/internal/ringbuffer"
)

var (
	version = "0.1.0"
)

// CLI defines the command-line interface
type CLI struct {
	Version     bool   `short:"v" help:"Show version information"`
	Config      string `short:"c" type:"existingfile" help:"YAML application config"`
	Mode        string `short:"m" help:"Demodulator: bfm, nfm or wfm"`
	Presets     string `type:"existingfile" help:"INI file of channel presets"`
	Preset      string `short:"p" help:"Channel preset to apply"`
	ListPresets bool   `help:"List the presets in --presets and exit"`
	Offset      *int64 `help:"Channel offset from the IQ centre frequency in Hz"`
	Rate        int    `help:"Sample rate of headerless IQ files"`
	Play        bool   `help:"Play the audio on the default output device"`
	Record      string `type:"path" help:"Record the audio to a WAV file"`
	RTP         string `name:"rtp" placeholder:"HOST:PORT" help:"Send the audio as RTP L16"`
	Metrics     string `placeholder:"ADDR" help:"Serve Prometheus metrics on this address"`
	MQTT        string `name:"mqtt" placeholder:"BROKER" help:"Publish RDS station data to this MQTT broker"`
	Fast        bool   `help:"Process as fast as possible instead of in real time"`
	File        string `arg:"" name:"iq-file" type:"existingfile" optional:"" help:"IQ recording, WAV or raw int16"`
}

func main() {
	cliArgs := &CLI{}
	ctx := kong.Parse(cliArgs,
		kong.Name("fmdemod"),
		kong.Description("FM, narrowband FM and broadcast FM stereo/RDS demodulator"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	if cliArgs.Version {
		cli.PrintVersion(version)
		os.Exit(0)
	}

	if err := run(cliArgs); err != nil {
		cli.PrintError(err.Error())
		if cliArgs.File == "" {
			ctx.PrintUsage(false)
		}
		os.Exit(1)
	}
}

// loadConfig merges the config file and the flags.
func loadConfig(args *CLI) (*config.Config, error) {
	cfg := config.New()
	if args.Config != "" {
		var err error
		if cfg, err = config.Load(args.Config); err != nil {
			return nil, err
		}
	}
	if args.Mode != "" {
		cfg.Mode = args.Mode
	}
	if args.Rate > 0 {
		cfg.IQSampleRate = args.Rate
	}
	if args.Play {
		cfg.Audio.Play = true
	}
	if args.Record != "" {
		cfg.Audio.Record = args.Record
	}
	if args.RTP != "" {
		cfg.Audio.RTP = args.RTP
	}
	if args.Metrics != "" {
		cfg.Metrics.Listen = args.Metrics
	}
	if args.MQTT != "" {
		cfg.MQTT.Broker = args.MQTT
	}
	if args.Fast {
		cfg.Realtime = false
	}
	return cfg, cfg.Validate()
}

func run(args *CLI) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}

	var preset *config.Preset
	if args.Presets != "" {
		presets, err := config.LoadPresets(args.Presets)
		if err != nil {
			return err
		}
		if args.ListPresets {
			for _, name := range presets.Names() {
				fmt.Println(name)
			}
			return nil
		}
		if args.Preset != "" {
			if preset, err = presets.Get(args.Preset); err != nil {
				return err
			}
			// A mode flag wins over the preset.
			if args.Mode == "" {
				cfg.Mode = preset.Mode(cfg.Mode)
			}
		}
	} else if args.Preset != "" || args.ListPresets {
		return fmt.Errorf("%w: --preset and --list-presets need --presets", config.ErrInvalidConfig)
	}

	if args.File == "" {
		return fmt.Errorf("no IQ file specified")
	}
	file, err := iq.Open(args.File, cfg.IQSampleRate)
	if err != nil {
		return err
	}
	defer file.Close()

	opts := channelOptions{mode: cfg.Mode, inputRate: file.SampleRate(), cfg: cfg, preset: preset}
	if args.Offset != nil {
		opts.offset, opts.haveOffset = *args.Offset, true
	}
	ch, err := newChannel(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fanout := audio.NewFanout()
	sinks, err := addSinks(cfg, ch, fanout)
	if err != nil {
		return err
	}
	ch.audio.SetTap(fanout.Tap)

	var exporter *metrics.Exporter
	if cfg.Metrics.Listen != "" {
		exporter = metrics.NewExporter(cfg.Metrics.Namespace)
		go func() {
			if err := exporter.Serve(ctx, cfg.Metrics.Listen); err != nil {
				log.Printf("[METRICS] %v", err)
			}
		}()
	}

	if cfg.MQTT.Broker != "" {
		if ch.setGroupHandler == nil {
			log.Printf("[MQTT] %s has no RDS, not publishing", cfg.Mode)
		} else {
			pub, err := publish.NewRDSPublisher(cfg.MQTT, ch.id)
			if err != nil {
				return err
			}
			ch.setGroupHandler(pub.Handle)
			log.Printf("[MQTT] publishing RDS to %s", pub.Topic())
			go pub.Run(ctx)
		}
	}

	fifo := ch.audio.FIFO()
	var player *audio.Player
	if cfg.Audio.Play {
		if player, err = audio.NewPlayer(cfg.AudioSampleRate, fifo); err != nil {
			return err
		}
	} else {
		go discard(fifo)
	}

	printHeader(args.File, file, cfg, ch)

	rb := ringbuffer.NewAligned(cfg.RingBufferSize, 2)
	go func() {
		if err := file.Pump(rb, cfg.ChunkSize); err != nil {
			log.Printf("[IQ] %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		rb.Close()
	}()

	done := make(chan struct{})
	go reportStatus(ch, exporter, fanout, done)

	ch.Start()
	samples := process(ctx, ch, iq.NewBlocks(rb, cfg.SampleBlockSize), file.SampleRate(), cfg.Realtime)
	ch.Stop()
	close(done)

	fifo.Close()
	if player != nil {
		waitDrained(ctx, fifo)
		if err := player.Close(); err != nil {
			log.Printf("[AUDIO] %v", err)
		}
	}
	if err := fanout.Close(); err != nil {
		return err
	}

	st := ch.Status()
	fmt.Println()
	cli.PrintKeyValue("Processed", fmt.Sprintf("%.1f s of IQ", float64(samples)/float64(file.SampleRate())))
	cli.PrintKeyValue("Audio dropped", st.AudioDropped)
	cli.PrintKeyValue("Audio clipped", st.AudioClipped)
	if sinks.recorder != nil {
		cli.PrintKeyValue("Recorded", fmt.Sprintf("%d frames to %s", sinks.recorder.Frames(), cfg.Audio.Record))
	}
	if sinks.rtp != nil {
		cli.PrintKeyValue("RTP packets", sinks.rtp.Packets())
	}
	if n := fanout.Dropped(); n > 0 {
		cli.PrintKeyValue("Sink blocks dropped", n)
	}
	return nil
}

// sinkSet holds the sinks attached to the fanout.
type sinkSet struct {
	recorder *audio.Recorder
	rtp      *audio.RTPSender
}

// addSinks attaches the WAV recorder and the RTP sender.
func addSinks(cfg *config.Config, ch *channel, fanout *audio.Fanout) (sinkSet, error) {
	var sinks sinkSet
	if cfg.Audio.Record != "" {
		rec, err := audio.NewRecorder(cfg.Audio.Record, cfg.AudioSampleRate, demod.AudioChannels)
		if err != nil {
			return sinks, err
		}
		fanout.Add("record", rec, 64)
		sinks.recorder = rec
	}

	addr := cfg.Audio.RTP
	if addr == "" && ch.common.CopyAudioToUDP {
		addr = net.JoinHostPort(ch.common.UDPAddress, strconv.Itoa(int(ch.common.UDPPort)))
	}
	if addr != "" {
		sender, err := audio.NewRTPSender(addr, ch.id, cfg.AudioSampleRate, demod.AudioChannels)
		if err != nil {
			return sinks, err
		}
		log.Printf("[AUDIO] RTP to %s, SSRC %08x", addr, sender.SSRC())
		fanout.Add("rtp", sender, 64)
		sinks.rtp = sender
	}
	return sinks, nil
}

// process feeds every block to the channel, optionally paced to the sample
// rate, and returns the number of complex samples fed.
func process(ctx context.Context, ch *channel, blocks *iq.Blocks, rate int, realtime bool) int64 {
	start := time.Now()
	var samples int64
	for {
		block := blocks.Next()
		if block == nil {
			return samples
		}
		ch.Feed(block)
		samples += int64(len(block))

		if realtime {
			due := start.Add(time.Duration(float64(samples) / float64(rate) * float64(time.Second)))
			if wait := time.Until(due); wait > 0 {
				select {
				case <-ctx.Done():
					return samples
				case <-time.After(wait):
				}
			}
		}
	}
}

// reportStatus prints a status line and updates the metrics every second.
func reportStatus(ch *channel, exporter *metrics.Exporter, fanout *audio.Fanout, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			st := ch.Status()
			levels := ch.MagSqLevels()
			if exporter != nil {
				exporter.Update(st, levels)
				exporter.SetSinkDropped(fanout.Dropped())
			}
			fmt.Println(cli.StatusLine(st, levels))
		}
	}
}

// discard drains the FIFO when nothing plays it.
func discard(fifo *ringbuffer.RingBuffer) {
	buf := make([]int16, 4096)
	for fifo.ReadAvailable(buf) > 0 {
	}
}

// waitDrained gives the player time to empty the FIFO.
func waitDrained(ctx context.Context, fifo *ringbuffer.RingBuffer) {
	deadline := time.Now().Add(2 * time.Second)
	for fifo.Len() > 0 && time.Now().Before(deadline) && ctx.Err() == nil {
		time.Sleep(20 * time.Millisecond)
	}
}

func printHeader(path string, file *iq.File, cfg *config.Config, ch *channel) {
	fmt.Println(cli.TitleStyle.Render("fmdemod " + version))
	format := "raw int16"
	if file.IsWAV() {
		format = "WAV"
	}
	cli.PrintKeyValue("Input", fmt.Sprintf("%s (%s)", path, format))
	cli.PrintKeyValue("IQ rate", fmt.Sprintf("%d S/s", file.SampleRate()))
	cli.PrintKeyValue("Mode", cfg.Mode)
	cli.PrintKeyValue("Channel", ch.id)
	if ch.common.Title != "" {
		cli.PrintKeyValue("Title", ch.common.Title)
	}
	cli.PrintKeyValue("Offset", fmt.Sprintf("%d Hz", ch.common.InputFrequencyOffset))
	cli.PrintKeyValue("RF bandwidth", fmt.Sprintf("%.0f Hz", ch.common.RFBandwidth))
	cli.PrintKeyValue("Audio", fmt.Sprintf("%d S/s", cfg.AudioSampleRate))
	fmt.Println()
}

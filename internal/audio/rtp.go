package audio

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/pion/rtp"
)

// Payload types for L16. 10 and 11 are the static 44.1 kHz types, anything
// else uses a dynamic type.
const (
	PayloadL16Stereo44k = 10
	PayloadL16Mono44k   = 11
	PayloadL16Dynamic   = 96

	// DefaultPacketFrames is 5 ms at 48 kHz.
	DefaultPacketFrames = 240
)

// RTPSender sends 16 bit PCM as RTP L16 (big-endian) over UDP.
type RTPSender struct {
	conn         net.Conn
	channels     int
	packetFrames int
	pending      []int16
	packet       rtp.Packet
	payload      []byte
	sent         uint64
}

// NewRTPSender dials addr. The SSRC and the initial sequence number and
// timestamp are taken from channel.
func NewRTPSender(addr string, channel uuid.UUID, sampleRate, channels int) (*RTPSender, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to open RTP destination %s: %w", addr, err)
	}
	pt := uint8(PayloadL16Dynamic)
	if sampleRate == 44100 && channels == 2 {
		pt = PayloadL16Stereo44k
	} else if sampleRate == 44100 && channels == 1 {
		pt = PayloadL16Mono44k
	}
	s := &RTPSender{
		conn:         conn,
		channels:     channels,
		packetFrames: DefaultPacketFrames,
	}
	s.packet.Header = rtp.Header{
		Version:        2,
		PayloadType:    pt,
		SSRC:           binary.BigEndian.Uint32(channel[0:4]),
		SequenceNumber: binary.BigEndian.Uint16(channel[4:6]),
		Timestamp:      binary.BigEndian.Uint32(channel[8:12]),
	}
	return s, nil
}

// SSRC returns the synchronization source of the stream.
func (s *RTPSender) SSRC() uint32 {
	return s.packet.SSRC
}

// WritePCM queues interleaved samples and sends every full packet.
func (s *RTPSender) WritePCM(pcm []int16) error {
	s.pending = append(s.pending, pcm...)
	size := s.packetFrames * s.channels
	var sent int
	for len(s.pending)-sent >= size {
		if err := s.send(s.pending[sent : sent+size]); err != nil {
			return err
		}
		sent += size
	}
	s.pending = append(s.pending[:0], s.pending[sent:]...)
	return nil
}

func (s *RTPSender) send(samples []int16) error {
	s.payload = s.payload[:0]
	for _, v := range samples {
		s.payload = binary.BigEndian.AppendUint16(s.payload, uint16(v))
	}
	s.packet.Payload = s.payload
	buf, err := s.packet.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal RTP packet: %w", err)
	}
	if _, err := s.conn.Write(buf); err != nil {
		return fmt.Errorf("failed to send RTP packet: %w", err)
	}
	s.packet.SequenceNumber++
	s.packet.Timestamp += uint32(len(samples) / s.channels)
	s.sent++
	return nil
}

// Packets returns the number of packets sent.
func (s *RTPSender) Packets() uint64 {
	return s.sent
}

// Close drops any partial packet and closes the socket.
func (s *RTPSender) Close() error {
	s.pending = nil
	return s.conn.Close()
}

package streamer

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/aquatrack/pkg/imgx"
	"github.com/cyclopcam/aquatrack/pkg/logprefix"
	"github.com/cyclopcam/aquatrack/server/monitor"
	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
)

type webSocketMsg int

const (
	webSocketMsgPause  webSocketMsg = iota // pause stream (eg browser tab deactivated)
	webSocketMsgResume                     // resume stream (eg browser tab reactivated)
)

// Sent by client over websocket
// SYNC-WEBSOCKET-JSON-MSG
type webSocketJSON struct {
	Command string `json:"command"`
}

// Queued data that must be sent over the websocket.
// Either frame or detection will be non-nil.
type webSocketSendPacket struct {
	frame     *monitor.FrameResult
	detection *monitor.DetectionEvent
}

// When we send a message on the websocket, it's either a BINARY frame, in which case
// it's a JPEG image. Or it's a TEXT frame, in which case it's this.
// SYNC-WEBSOCKET-STRING-MESSAGE
type webSocketSendStringMessage struct {
	Type      string                  `json:"type"` // Only type of message is "detection"
	Detection *monitor.DetectionEvent `json:"detection"`
}

// Number of messages that we will buffer on the send side, before dropping messages to the client.
const WebSocketSendBufferSize = 50

// Size of the header in front of every JPEG frame: flags, then frame index, both uint32 little endian
const FrameHeaderSize = 8

var nextWebSocketStreamerID int64

type Options struct {
	SendFrames  bool // Send composited frames as JPEG, in addition to detection events
	JPEGQuality int
}

// EventWebSocketStreamer sends the output of the monitor to one websocket client.
type EventWebSocketStreamer struct {
	log             logs.Log
	streamerID      int64 // Intended to aid in logging/debugging
	options         Options
	incoming        chan *monitor.FrameResult
	closed          atomic.Bool
	paused          atomic.Bool
	fromWebSocket   chan webSocketMsg
	sendQueue       chan webSocketSendPacket
	lastDropMsg     time.Time
	nDropped        int64
	nSent           int64
	lastFrameQueued int64 // Index of the last frame that we queued, to avoid sending duplicates
}

// Run a streamer until the websocket is closed, or the monitor is closed.
// This blocks, so it is typically called from an HTTP handler.
func RunEventWebSocketStreamer(logger logs.Log, conn *websocket.Conn, m *monitor.Monitor, options Options) {
	streamerID := atomic.AddInt64(&nextWebSocketStreamerID, 1)
	if options.JPEGQuality == 0 {
		options.JPEGQuality = imgx.DefaultJPEGQuality
	}

	streamer := &EventWebSocketStreamer{
		log:             logprefix.New(logger, fmt.Sprintf("WebSocket %v", streamerID)),
		streamerID:      streamerID,
		options:         options,
		sendQueue:       make(chan webSocketSendPacket, WebSocketSendBufferSize),
		lastFrameQueued: -1,
	}

	streamer.incoming = m.AddWatcher()
	defer m.RemoveWatcher(streamer.incoming)

	streamer.run(conn)
}

func (s *EventWebSocketStreamer) onFrame(result *monitor.FrameResult) {
	// We really don't want to block on a full channel here, because that would
	// stall the monitor's watcher channel, and eventually the monitor would drop frames
	// for every other watcher too.
	for _, ev := range result.Events {
		if !s.enqueue(webSocketSendPacket{detection: ev}) {
			return
		}
	}
	if s.options.SendFrames && result.Image != nil && result.Index != s.lastFrameQueued {
		// Frames are bulky, so leave room for detections
		if len(s.sendQueue) < WebSocketSendBufferSize*3/4 {
			s.enqueue(webSocketSendPacket{frame: result})
			s.lastFrameQueued = result.Index
		} else {
			s.drop()
		}
	}
}

func (s *EventWebSocketStreamer) enqueue(pkt webSocketSendPacket) bool {
	if len(s.sendQueue) >= WebSocketSendBufferSize {
		s.drop()
		return false
	}
	s.nSent++
	s.sendQueue <- pkt
	return true
}

func (s *EventWebSocketStreamer) drop() {
	s.nDropped++
	now := time.Now()
	if now.Sub(s.lastDropMsg) > 5*time.Second {
		s.log.Infof("Dropped %v/%v messages", s.nDropped, s.nDropped+s.nSent)
		s.lastDropMsg = now
	}
}

func (s *EventWebSocketStreamer) run(conn *websocket.Conn) {
	defer conn.Close()

	s.fromWebSocket = make(chan webSocketMsg, 1)
	go s.webSocketReader(conn)
	writerDone := make(chan bool)
	go func() {
		s.webSocketWriter(conn)
		close(writerDone)
	}()

	s.closed.Store(false)
	s.paused.Store(false)

	for !s.closed.Load() {
		select {
		case wsMsg, ok := <-s.fromWebSocket:
			if !ok {
				s.log.Infof("Client closed connection")
				s.closed.Store(true)
				break
			}
			switch wsMsg {
			case webSocketMsgPause:
				s.paused.Store(true)
			case webSocketMsgResume:
				s.paused.Store(false)
			}
		case result := <-s.incoming:
			if !s.paused.Load() {
				s.onFrame(result)
			}
		}
	}
	close(s.sendQueue)
	<-writerDone
}

// Read from the websocket and post to our own channel, so that we can
// run a single loop that handles reads from websocket and reads from the monitor.
func (s *EventWebSocketStreamer) webSocketReader(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType == websocket.TextMessage {
			msg := webSocketJSON{}
			if err := json.Unmarshal(data, &msg); err != nil {
				s.log.Infof("webSocketReader failed to decode JSON: %v", err)
			} else {
				s.log.Infof("Received %v command from websocket", msg.Command)
				// SYNC-WEBSOCKET-COMMANDS
				switch msg.Command {
				case "pause":
					s.fromWebSocket <- webSocketMsgPause
				case "resume":
					s.fromWebSocket <- webSocketMsgResume
				default:
					s.log.Infof("Unknown websocket message from client: '%v'", msg.Command)
				}
			}
		}
	}
	close(s.fromWebSocket)
}

// Run a thread that is responsible for writing to the websocket.
// We run this on a separate thread so that a slow client doesn't block
// the monitor watcher channel, and JPEG compression happens off the main loop.
func (s *EventWebSocketStreamer) webSocketWriter(conn *websocket.Conn) {
	for pkt := range s.sendQueue {
		if s.closed.Load() || s.paused.Load() {
			// Drain the queue without sending
			continue
		}
		if pkt.frame != nil {
			msg, err := EncodeFrameMessage(pkt.frame, s.options.JPEGQuality)
			if err != nil {
				s.log.Errorf("Failed to encode frame %v: %v", pkt.frame.Index, err)
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				s.log.Infof("Error writing to websocket: %v", err)
			}
		} else {
			out := webSocketSendStringMessage{
				Type:      "detection",
				Detection: pkt.detection,
			}
			j, err := json.Marshal(&out)
			if err != nil {
				s.log.Errorf("Failed to marshal websocket string message: %v", err)
			} else if err := conn.WriteMessage(websocket.TextMessage, j); err != nil {
				s.log.Infof("Error writing to websocket: %v", err)
			}
		}
	}
}

// EncodeFrameMessage produces the payload of a BINARY websocket message:
// uint32 flags, uint32 frame index, then the JPEG image.
// Flag bit 0 is set if the tracker failed on this frame.
func EncodeFrameMessage(frame *monitor.FrameResult, quality int) ([]byte, error) {
	jpg, err := imgx.EncodeJPEG(frame.Image, quality)
	if err != nil {
		return nil, err
	}
	buf := bytes.Buffer{}
	flags := uint32(0)
	if frame.DetectionErr != nil {
		flags |= 1
	}
	binary.Write(&buf, binary.LittleEndian, flags)
	binary.Write(&buf, binary.LittleEndian, uint32(frame.Index))
	buf.Write(jpg)
	return buf.Bytes(), nil
}

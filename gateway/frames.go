package gateway

import (
	"bytes"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/zlib"
	"github.com/tidwall/gjson"

	"discord-gateway-client/etf"
)

// frame is a decoded inbound envelope. data holds the raw payload: JSON
// bytes, or a version-prefixed ETF term cut out of the frame, so payload
// decoding is deferred until the event kind is known.
type frame struct {
	op     int
	seq    int64
	hasSeq bool
	event  string
	data   []byte
}

// readFrame receives and decodes one frame, detecting the wire format
// from the transport frame type and payload shape.
func (g *Gateway) readFrame(conn *websocket.Conn) (frame, error) {
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		return frame{}, err
	}
	if msgType == websocket.BinaryMessage && len(data) > 0 && data[0] == 0x78 {
		// zlib-wrapped payload; the inner bytes keep their own format.
		data, err = inflate(data)
		if err != nil {
			return frame{}, fmt.Errorf("%w: inflate: %v", ErrProtocol, err)
		}
	}
	if len(data) > 0 && data[0] == etf.Version {
		return decodeETFFrame(data)
	}
	return decodeJSONFrame(data)
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// decodeJSONFrame probes op, s and t without a full parse and cuts the
// raw d payload out of the envelope.
func decodeJSONFrame(data []byte) (frame, error) {
	op := gjson.GetBytes(data, "op")
	if !op.Exists() {
		return frame{}, fmt.Errorf("%w: frame without op", ErrProtocol)
	}
	f := frame{op: int(op.Int())}
	if s := gjson.GetBytes(data, "s"); s.Exists() && s.Type == gjson.Number {
		f.seq = s.Int()
		f.hasSeq = true
	}
	f.event = gjson.GetBytes(data, "t").String()
	if d := gjson.GetBytes(data, "d"); d.Exists() {
		f.data = []byte(d.Raw)
	}
	return f, nil
}

// decodeETFFrame tree-parses the envelope and cuts the nested d term back
// out of the buffer by its offsets.
func decodeETFFrame(data []byte) (frame, error) {
	term, err := etf.ParseTerm(data)
	if err != nil {
		return frame{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	opTerm, ok := term.Get("op")
	if !ok {
		return frame{}, fmt.Errorf("%w: frame without op", ErrProtocol)
	}
	op, err := opTerm.Int64()
	if err != nil {
		return frame{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	f := frame{op: int(op)}
	if s, ok := term.Get("s"); ok && !s.IsNil() {
		if seq, err := s.Int64(); err == nil {
			f.seq = seq
			f.hasSeq = true
		}
	}
	if t, ok := term.Get("t"); ok {
		f.event = t.Text()
	}
	if d, ok := term.Get("d"); ok && !d.IsNil() {
		raw := make([]byte, 0, d.End-d.Start+1)
		raw = append(raw, etf.Version)
		raw = append(raw, data[d.Start:d.End]...)
		f.data = raw
	}
	return f, nil
}

// encodeFrame serializes an outbound envelope in the negotiated encoding
// and returns the websocket message type to send it as. ETF frames are
// built in a fixed buffer sized to the outbound cap, so an oversize
// payload surfaces as ErrPacketTooLarge instead of going on the wire.
func (g *Gateway) encodeFrame(op int, d interface{}) ([]byte, int, error) {
	env := struct {
		Op int         `json:"op"`
		D  interface{} `json:"d"`
	}{Op: op, D: d}

	if g.opts.Encoding == EncodingETF {
		buf := etf.NewFixedBuffer(maxFrameSize)
		if err := etf.NewEncoder(buf).Encode(env); err != nil {
			if err == etf.ErrBufferResize {
				return nil, 0, ErrPacketTooLarge
			}
			return nil, 0, err
		}
		return buf.Bytes(), websocket.BinaryMessage, nil
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return nil, 0, err
	}
	if len(payload) > maxFrameSize {
		return nil, 0, ErrPacketTooLarge
	}
	return payload, websocket.TextMessage, nil
}

// decodePayload decodes a deferred payload by sniffing its format.
func decodePayload(data []byte, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if data[0] == etf.Version {
		return etf.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

package client

import (
	"context"
	"io"
	"net/http"

	"github.com/ashureev/agentstream/internal/domain"
	"github.com/ashureev/agentstream/internal/stream"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// StreamWebSocket opens a streamed turn over the WebSocket endpoint. The
// server sends the same event records as the HTTP stream, one or more per
// text frame; frame boundaries carry no meaning to the decoder. The caller
// must close the returned closer once done with the decoder.
func (c *Client) StreamWebSocket(ctx context.Context, text, agentID string) (*stream.Decoder, io.Closer, error) {
	opts := &websocket.DialOptions{HTTPClient: c.http, HTTPHeader: http.Header{}}
	injectTraceHeaders(ctx, opts.HTTPHeader)

	conn, resp, err := websocket.Dial(ctx, c.baseURL+websocketPath, opts)
	if err != nil {
		if resp != nil && resp.StatusCode != 0 {
			return nil, nil, &stream.TransportError{StatusCode: resp.StatusCode, Err: err}
		}
		return nil, nil, &stream.TransportError{Err: err}
	}
	conn.SetReadLimit(maxJSONBodySize)

	if err := wsjson.Write(ctx, conn, domain.ChatRequest{Message: text, AgentID: agentID}); err != nil {
		_ = conn.CloseNow()
		return nil, nil, &stream.TransportError{Err: err}
	}
	c.logger.Info("Agent chat request", "agent_id", agentID, "message_length", len(text), "streamed", true, "transport", "websocket")

	r := &wsReader{ctx: ctx, conn: conn}
	return stream.NewDecoder(r, c.decodeOpts...), r, nil
}

// wsReader adapts a websocket.Conn to io.Reader. A normal closure from the
// server is end-of-stream.
type wsReader struct {
	ctx  context.Context
	conn *websocket.Conn
	buf  []byte
}

func (r *wsReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		_, data, err := r.conn.Read(r.ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return 0, io.EOF
			}
			return 0, err
		}
		r.buf = data
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *wsReader) Close() error {
	return r.conn.Close(websocket.StatusNormalClosure, "stream consumed")
}

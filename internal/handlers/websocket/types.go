package websocket

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/xpanvictor/voxline/internal/domains/sys_manager/session"
	"github.com/xpanvictor/voxline/pkg/utils"
)

// MessageType is the "type" of a client text frame.
type MessageType string

const (
	MessageTypeInterrupt MessageType = "interrupt"
	MessageTypeEnd       MessageType = "end"
	MessageTypeConfig    MessageType = "config"
)

// ClientMessage is a decoded client control frame. Values holds the config
// keys of a config message as strings.
type ClientMessage struct {
	Type   MessageType
	Values map[string]string
}

var configKeys = func() map[string]bool {
	m := make(map[string]bool, len(session.ConfigKeys))
	for _, k := range session.ConfigKeys {
		m[k] = true
	}
	return m
}()

// decodeClientMessage parses a text frame. Anything malformed is a
// protocol error.
func decodeClientMessage(data []byte) (ClientMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ClientMessage{}, utils.NewError(utils.KindProtocol, "text frame is not a JSON object", err)
	}
	var typ string
	if err := json.Unmarshal(raw["type"], &typ); err != nil || typ == "" {
		return ClientMessage{}, utils.Errorf(utils.KindProtocol, "message without a type")
	}

	msg := ClientMessage{Type: MessageType(typ)}
	switch msg.Type {
	case MessageTypeInterrupt, MessageTypeEnd:
		return msg, nil
	case MessageTypeConfig:
	default:
		return ClientMessage{}, utils.Errorf(utils.KindProtocol, "unknown message type %q", typ)
	}

	msg.Values = make(map[string]string, len(raw))
	for k, v := range raw {
		if k == "type" {
			continue
		}
		if !configKeys[k] {
			return ClientMessage{}, utils.Errorf(utils.KindProtocol, "unknown config key %q", k)
		}
		s, err := scalar(v)
		if err != nil {
			return ClientMessage{}, utils.NewError(utils.KindProtocol, "config "+k, err)
		}
		msg.Values[k] = s
	}
	return msg, nil
}

// scalar renders a JSON string or number as text.
func scalar(v json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return "", err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return "", err
	}
	return n.String(), nil
}

// queryConfig picks the config keys present in the upgrade query.
func queryConfig(q url.Values) map[string]string {
	out := make(map[string]string)
	for _, k := range session.ConfigKeys {
		if vs, ok := q[k]; ok && len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}

package clientchannel

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// wsChannel is the reference ClientChannel transport: upgrade once, then
// read and write JSON frames for the lifetime of the connection.
type wsChannel struct {
	conn *websocket.Conn
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// UpgradeHTTP upgrades an incoming HTTP request to a websocket-backed
// ClientChannel. Callers are expected to front this with their own
// authentication/origin checks before calling it.
func UpgradeHTTP(w http.ResponseWriter, r *http.Request) (ClientChannel, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &wsChannel{conn: conn}, nil
}

func (c *wsChannel) Send(msg Outbound) error {
	return c.conn.WriteJSON(msg)
}

func (c *wsChannel) Receive() (Inbound, error) {
	var msg Inbound
	if err := c.conn.ReadJSON(&msg); err != nil {
		return Inbound{}, err
	}
	return msg, nil
}

func (c *wsChannel) Close() error {
	return c.conn.Close()
}

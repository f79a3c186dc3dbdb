package realtime

import (
	"context"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// Bridge subscribes to a Redis channel and forwards every payload to the
// websocket until the client disconnects or ctx is done. Payloads are
// already JSON; they are written through untouched.
func Bridge(ctx context.Context, rdb *redis.Client, conn *websocket.Conn, channel string) {
	if rdb == nil {
		log.Println("redis client is nil, cannot subscribe")
		return
	}

	pubsub := rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		log.Printf("failed to subscribe to redis channel %s: %v", channel, err)
		return
	}

	ch := pubsub.Channel()

	clientClosed := make(chan struct{})
	go func() {
		defer close(clientClosed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-ch:
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				log.Printf("failed to write message to websocket: %v", err)
				return
			}
		case <-clientClosed:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Upgrader is the shared websocket upgrader. Origin checking is delegated
// to the CORS layer.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

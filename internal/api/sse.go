package api

import (
	"encoding/json"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/pokerjest/modlistAutoTool/internal/event"
)

// SSEHandler 处理 Server-Sent Events 连接，把事件总线桥接给客户端
func SSEHandler(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Transfer-Encoding", "chunked")

	clientChan := make(chan event.Event, 10)

	// 非阻塞转发，慢客户端不能拖住总线
	bridgeHandler := func(e event.Event) {
		select {
		case clientChan <- e:
		default:
		}
	}

	topics := []event.EventType{
		event.EventBatchStart,
		event.EventRecordDone,
		event.EventDownloadProgress,
		event.EventRunComplete,
	}

	subIDs := make(map[event.EventType]string)
	for _, t := range topics {
		subIDs[t] = event.GlobalBus.Subscribe(t, bridgeHandler)
	}

	c.SSEvent("message", "connected")
	c.Writer.Flush()

	defer func() {
		for t, id := range subIDs {
			event.GlobalBus.Unsubscribe(t, id)
		}
		log.Println("SSE client disconnected")
	}()

	for {
		select {
		case evt := <-clientChan:
			data, err := json.Marshal(evt.Payload)
			if err != nil {
				log.Printf("SSE JSON marshal error: %v", err)
				continue
			}
			c.SSEvent(string(evt.Type), string(data))
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

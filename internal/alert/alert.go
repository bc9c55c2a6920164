// Package alert forwards notable events to two webhook endpoints: a critical
// channel that pages, and an activity channel for daily color. Delivery is
// best effort behind a bounded queue; the game never waits on a webhook.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"triad-arena/server/logging"
)

const (
	defaultQueueSize = 256
	postTimeout      = 10 * time.Second
)

// criticalTypes page regardless of severity.
var criticalTypes = map[logging.EventType]bool{
	logging.EventPayoutFailed: true,
	logging.EventRefundFailed: true,
	logging.EventBalanceShort: true,
	logging.EventChainError:   true,
	logging.EventStoreError:   true,
}

// Notifier implements logging.Sink over the two webhook endpoints. Either
// URL may be empty, which silences that channel.
type Notifier struct {
	criticalURL string
	activityURL string
	client      *http.Client

	mu      sync.Mutex
	queue   []payload
	dropped int
	wake    chan struct{}
	done    chan struct{}
	closed  bool
}

type payload struct {
	URL  string
	Body []byte
}

type webhookBody struct {
	Text string `json:"text"`
}

func NewNotifier(criticalURL, activityURL string) *Notifier {
	n := &Notifier{
		criticalURL: criticalURL,
		activityURL: activityURL,
		client:      &http.Client{Timeout: postTimeout},
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *Notifier) Name() string { return "alert" }

// Write enqueues the event. When the queue is full the oldest entry is
// dropped; the drop count is folded into the next delivered message.
func (n *Notifier) Write(event logging.Event) error {
	url := n.route(event)
	if url == "" {
		return nil
	}
	body, err := json.Marshal(webhookBody{Text: format(event)})
	if err != nil {
		return err
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	if len(n.queue) >= defaultQueueSize {
		n.queue = n.queue[1:]
		n.dropped++
	}
	n.queue = append(n.queue, payload{URL: url, Body: body})
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
	return nil
}

func (n *Notifier) Close(context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	n.mu.Unlock()
	close(n.done)
	return nil
}

func (n *Notifier) route(event logging.Event) string {
	if criticalTypes[event.Type] || event.Severity >= logging.SeverityError {
		return n.criticalURL
	}
	return n.activityURL
}

func (n *Notifier) run() {
	for {
		select {
		case <-n.done:
			n.flush()
			return
		case <-n.wake:
			n.flush()
		}
	}
}

func (n *Notifier) flush() {
	for {
		n.mu.Lock()
		if len(n.queue) == 0 {
			n.mu.Unlock()
			return
		}
		item := n.queue[0]
		n.queue = n.queue[1:]
		dropped := n.dropped
		n.dropped = 0
		n.mu.Unlock()

		if dropped > 0 {
			summary, _ := json.Marshal(webhookBody{
				Text: fmt.Sprintf("alert queue overflowed, %d notifications dropped", dropped),
			})
			n.post(item.URL, summary)
		}
		n.post(item.URL, item.Body)
	}
}

func (n *Notifier) post(url string, body []byte) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

func format(event logging.Event) string {
	text := fmt.Sprintf("[%s] %s %s", event.Category, event.Type, event.Actor.ID)
	for key, value := range event.Extra {
		text += fmt.Sprintf(" %s=%v", key, value)
	}
	return text
}

package knot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

const TransportBufferSize = 32

var ErrNotConnected = errors.New("not connected")

type PlatformTransportSettings struct {
	WsHandshakeTimeout time.Duration
	ReconnectTimeout   time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
}

func DefaultPlatformTransportSettings() *PlatformTransportSettings {
	return &PlatformTransportSettings{
		WsHandshakeTimeout: 2 * time.Second,
		ReconnectTimeout:   5 * time.Second,
		PingTimeout:        15 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        60 * time.Second,
	}
}

type ClientAuth struct {
	AccessToken string
	InstanceId  string
	AppVersion  string
}

func (self *ClientAuth) SelfId() (Id, error) {
	accessToken, err := ParseAccessTokenUnverified(self.AccessToken)
	if err != nil {
		return 0, err
	}
	return accessToken.UserId, nil
}

type ReceiveFunction func(frame string)
type ConnectionFunction func(connected bool)

type receiveCallback struct {
	callback ReceiveFunction
}

type connectionCallback struct {
	callback ConnectionFunction
}

// PlatformTransport maintains one persistent websocket to the platform
// and reconnects with a spaced retry when it drops. Frames are opaque
// text; decoding belongs to the consumers. The transport is process
// scoped: views subscribe and unsubscribe, closing a view never closes
// the connection.
type PlatformTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	wsUrl string
	auth  *ClientAuth

	settings *PlatformTransportSettings

	send chan string

	stateMutex sync.Mutex
	connected  bool

	connectionMonitor   *Monitor
	receiveCallbacks    *CallbackList[*receiveCallback]
	connectionCallbacks *CallbackList[*connectionCallback]
}

func NewPlatformTransportWithDefaults(
	ctx context.Context,
	wsUrl string,
	auth *ClientAuth,
) *PlatformTransport {
	return NewPlatformTransport(ctx, wsUrl, auth, DefaultPlatformTransportSettings())
}

func NewPlatformTransport(
	ctx context.Context,
	wsUrl string,
	auth *ClientAuth,
	settings *PlatformTransportSettings,
) *PlatformTransport {
	cancelCtx, cancel := context.WithCancel(ctx)
	transport := &PlatformTransport{
		ctx:                 cancelCtx,
		cancel:              cancel,
		wsUrl:               wsUrl,
		auth:                auth,
		settings:            settings,
		send:                make(chan string, TransportBufferSize),
		connectionMonitor:   NewMonitor(),
		receiveCallbacks:    NewCallbackList[*receiveCallback](),
		connectionCallbacks: NewCallbackList[*connectionCallback](),
	}
	go transport.run()
	return transport
}

func (self *PlatformTransport) run() {
	defer func() {
		self.cancel()
		self.setConnected(false)
	}()

	for {
		reconnect := NewReconnect(self.settings.ReconnectTimeout)

		connect := func() (*websocket.Conn, error) {
			dialer := &websocket.Dialer{
				HandshakeTimeout: self.settings.WsHandshakeTimeout,
			}
			header := http.Header{}
			if self.auth.AccessToken != "" {
				header.Add("Authorization", fmt.Sprintf("Bearer %s", self.auth.AccessToken))
			}
			if self.auth.InstanceId != "" {
				header.Add("X-Instance-Id", self.auth.InstanceId)
			}
			if self.auth.AppVersion != "" {
				header.Add("X-App-Version", self.auth.AppVersion)
			}
			ws, _, err := dialer.DialContext(self.ctx, self.wsUrl, header)
			if err != nil {
				return nil, err
			}
			return ws, nil
		}

		ws, err := connect()
		if err != nil {
			glog.Infof("[t]connect error = %s\n", err)
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect.After():
				continue
			}
		}

		c := func() {
			defer ws.Close()

			handleCtx, handleCancel := context.WithCancel(self.ctx)
			defer handleCancel()

			self.setConnected(true)
			defer self.setConnected(false)

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					case frame, ok := <-self.send:
						if !ok {
							return
						}

						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
							// a websocket deadline timeout cannot be recovered
							glog.Infof("[ts]-> error = %s\n", err)
							return
						}
						glog.V(2).Infof("[ts]->\n")
					case <-time.After(self.settings.PingTimeout):
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
							return
						}
					}
				}
			}()

			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					default:
					}

					ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
					messageType, message, err := ws.ReadMessage()
					if err != nil {
						glog.Infof("[tr]<- error = %s\n", err)
						return
					}

					switch messageType {
					case websocket.TextMessage:
						glog.V(2).Infof("[tr]<-\n")
						frame := string(message)
						for _, receiveCallback := range self.receiveCallbacks.Get() {
							receiveCallback.callback(frame)
						}
					default:
						glog.V(2).Infof("[tr]other=%d <-\n", messageType)
					}
				}
			}()

			select {
			case <-handleCtx.Done():
			}
		}
		c()

		select {
		case <-self.ctx.Done():
			return
		case <-reconnect.After():
		}
	}
}

func (self *PlatformTransport) setConnected(connected bool) {
	self.stateMutex.Lock()
	changed := self.connected != connected
	self.connected = connected
	self.stateMutex.Unlock()

	if !changed {
		return
	}

	// a connection drop blocks new sends. queued frames are dropped
	// rather than stored for later delivery.
	if !connected {
	drain:
		for {
			select {
			case frame := <-self.send:
				glog.Infof("[t]drop queued frame on disconnect (%d bytes)\n", len(frame))
			default:
				break drain
			}
		}
	}

	self.connectionMonitor.NotifyAll()
	for _, connectionCallback := range self.connectionCallbacks.Get() {
		connectionCallback.callback(connected)
	}
}

func (self *PlatformTransport) IsConnected() bool {
	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()
	return self.connected
}

// Send queues one frame for delivery. A send while disconnected is
// rejected synchronously; nothing is stored for later.
func (self *PlatformTransport) Send(frame string) error {
	if !self.IsConnected() {
		return ErrNotConnected
	}
	select {
	case <-self.ctx.Done():
		return ErrNotConnected
	case self.send <- frame:
		return nil
	case <-time.After(self.settings.WriteTimeout):
		return errors.New("send backpressure timeout")
	}
}

// SendEvent marshals a client->server wire event and queues it.
func (self *PlatformTransport) SendEvent(event map[string]any) error {
	frameBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return self.Send(string(frameBytes))
}

// AddReceiveCallback registers a frame consumer. Returns the
// unsubscribe function.
func (self *PlatformTransport) AddReceiveCallback(callback ReceiveFunction) func() {
	return self.receiveCallbacks.Add(&receiveCallback{callback: callback})
}

// AddConnectionCallback registers a connection-state observer. The
// current value is delivered immediately so the observer does not need
// a separate initial read.
func (self *PlatformTransport) AddConnectionCallback(callback ConnectionFunction) func() {
	unsub := self.connectionCallbacks.Add(&connectionCallback{callback: callback})
	callback(self.IsConnected())
	return unsub
}

func (self *PlatformTransport) ConnectionMonitor() *Monitor {
	return self.connectionMonitor
}

func (self *PlatformTransport) Close() {
	self.cancel()
}

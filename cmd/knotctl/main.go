package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"golang.org/x/term"

	"github.com/knot-chat/client/knot"
)

const KnotCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Knot control.

The default urls are:
    api_url: http://localhost:8080
    ws_url: ws://localhost:8080/ws
Both can also be set with KNOT_API_URL and KNOT_WS_URL.

Usage:
    knotctl login [--api_url=<api_url>] --username=<username>
    knotctl snapshot [--api_url=<api_url>] --token=<token>
    knotctl watch [--ws_url=<ws_url>] [--api_url=<api_url>] --token=<token>
    knotctl send-request [--ws_url=<ws_url>] [--api_url=<api_url>] --token=<token>
        --receiver=<receiver_id> [<message>]
    knotctl send-message [--ws_url=<ws_url>] [--api_url=<api_url>] --token=<token>
        --conversation=<conversation_id> <message>

Options:
    -h --help                          Show this screen.
    --version                          Show version.
    --api_url=<api_url>
    --ws_url=<ws_url>
    --username=<username>
    --token=<token>                    Your access token.
    --receiver=<receiver_id>           Receiving user id.
    --conversation=<conversation_id>   Conversation id.`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], KnotCtlVersion)
	if err != nil {
		panic(err)
	}

	if login_, _ := opts.Bool("login"); login_ {
		login(opts)
	} else if snapshot_, _ := opts.Bool("snapshot"); snapshot_ {
		snapshot(opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	} else if sendRequest_, _ := opts.Bool("send-request"); sendRequest_ {
		sendRequest(opts)
	} else if sendMessage_, _ := opts.Bool("send-message"); sendMessage_ {
		sendMessage(opts)
	}
}

func settings(opts docopt.Opts) *knot.ClientSettings {
	clientSettings, err := knot.LoadClientSettings()
	if err != nil {
		Err.Fatalf("Bad settings: %s", err)
	}
	if apiUrl, err := opts.String("--api_url"); err == nil && apiUrl != "" {
		clientSettings.ApiUrl = apiUrl
	}
	if wsUrl, err := opts.String("--ws_url"); err == nil && wsUrl != "" {
		clientSettings.WsUrl = wsUrl
	}
	return clientSettings
}

func login(opts docopt.Opts) {
	clientSettings := settings(opts)
	username, _ := opts.String("--username")

	fmt.Fprint(os.Stderr, "Password: ")
	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		Err.Fatalf("Could not read password: %s", err)
	}

	api := knot.NewKnotApi(clientSettings.ApiUrl)
	result, err := api.AuthLoginSync(&knot.AuthLoginArgs{
		Username: username,
		Password: string(passwordBytes),
	})
	if err != nil {
		Err.Fatalf("Login failed: %s", err)
	}
	Out.Printf("%s", result.AccessToken)
}

func snapshot(opts docopt.Opts) {
	clientSettings := settings(opts)
	token, _ := opts.String("--token")

	api := knot.NewKnotApi(clientSettings.ApiUrl)
	api.SetAccessToken(token)

	friendSnapshot, err := api.FetchFriendSnapshotSync()
	if err != nil {
		Err.Fatalf("Snapshot failed: %s", err)
	}

	Out.Printf("friends (%d):", len(friendSnapshot.Friends))
	for _, friend := range friendSnapshot.Friends {
		Out.Printf("  %s (user %d, conversation %d)", friend.DisplayName(), friend.UserId, friend.ConvId)
	}
	Out.Printf("incoming requests (%d):", len(friendSnapshot.IncomingRequests))
	for _, request := range friendSnapshot.IncomingRequests {
		Out.Printf("  #%d from %s: %s [%s]", request.RequestId, request.RequesterDisplayName(), request.Message, request.Status)
	}
	Out.Printf("outgoing requests (%d):", len(friendSnapshot.OutgoingRequests))
	for _, request := range friendSnapshot.OutgoingRequests {
		Out.Printf("  #%d to user %d: %s [%s]", request.RequestId, request.ReceiverId, request.Message, request.Status)
	}
}

func client(opts docopt.Opts) (*knot.PlatformTransport, *knot.KnotApi, *knot.ClientAuth, *knot.ClientSettings) {
	clientSettings := settings(opts)
	token, _ := opts.String("--token")

	auth := &knot.ClientAuth{
		AccessToken: token,
		InstanceId:  knot.NewInstanceId(),
		AppVersion:  clientSettings.AppVersion,
	}
	api := knot.NewKnotApi(clientSettings.ApiUrl)
	api.SetAccessToken(token)
	transport := knot.NewPlatformTransport(
		context.Background(),
		clientSettings.WsUrl,
		auth,
		clientSettings.TransportSettings,
	)
	return transport, api, auth, clientSettings
}

func waitForConnection(transport *knot.PlatformTransport, timeout time.Duration) {
	end := time.Now().Add(timeout)
	for !transport.IsConnected() {
		if end.Before(time.Now()) {
			Err.Fatalf("Could not connect")
		}
		select {
		case <-transport.ConnectionMonitor().NotifyChannel():
		case <-time.After(time.Until(end)):
		}
	}
}

func watch(opts docopt.Opts) {
	transport, api, auth, clientSettings := client(opts)
	defer transport.Close()

	friendView := knot.NewFriendView(context.Background(), transport, api, clientSettings)
	defer friendView.Close()
	friendView.AddNotificationCallback(func(message string, isError bool) {
		if isError {
			Out.Printf("[friend][error] %s", message)
		} else {
			Out.Printf("[friend] %s", message)
		}
	})

	chatView, err := knot.NewChatView(context.Background(), transport, auth, clientSettings)
	if err != nil {
		Err.Fatalf("Bad token: %s", err)
	}
	defer chatView.Close()
	chatView.AddNotificationCallback(func(message string, isError bool) {
		if isError {
			Out.Printf("[chat][error] %s", message)
		} else {
			Out.Printf("[chat] %s", message)
		}
	})

	waitForConnection(transport, 15*time.Second)
	if err := friendView.Refresh(); err == nil {
		chatView.SeedConversations(friendView.State().Friends)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}

func sendRequest(opts docopt.Opts) {
	transport, api, _, clientSettings := client(opts)
	defer transport.Close()

	receiverStr, _ := opts.String("--receiver")
	receiverId, err := strconv.ParseInt(receiverStr, 10, 64)
	if err != nil {
		Err.Fatalf("Bad receiver id: %s", err)
	}
	message, _ := opts.String("<message>")

	friendView := knot.NewFriendView(context.Background(), transport, api, clientSettings)
	defer friendView.Close()

	done := make(chan struct{}, 1)
	friendView.AddNotificationCallback(func(message string, isError bool) {
		if isError {
			Out.Printf("[error] %s", message)
		} else {
			Out.Printf("%s", message)
		}
		if message == "Friend request sent" || isError {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})

	waitForConnection(transport, 15*time.Second)
	if err := friendView.SendFriendRequest(receiverId, message); err != nil {
		Err.Fatalf("Send failed: %s", err)
	}

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		Err.Fatalf("No acknowledgment")
	}
}

func sendMessage(opts docopt.Opts) {
	transport, _, auth, clientSettings := client(opts)
	defer transport.Close()

	conversationStr, _ := opts.String("--conversation")
	convId, err := strconv.ParseInt(conversationStr, 10, 64)
	if err != nil {
		Err.Fatalf("Bad conversation id: %s", err)
	}
	message, _ := opts.String("<message>")

	chatView, err := knot.NewChatView(context.Background(), transport, auth, clientSettings)
	if err != nil {
		Err.Fatalf("Bad token: %s", err)
	}
	defer chatView.Close()

	waitForConnection(transport, 15*time.Second)
	clientMsgId, err := chatView.SendMessage(convId, message)
	if err != nil {
		Err.Fatalf("Send failed: %s", err)
	}

	// wait for the ack to flip the message to sent
	end := time.Now().Add(15 * time.Second)
	for {
		status := knot.MessagePending
		for _, m := range chatView.State().Conversations[convId] {
			if m.ClientMsgId == clientMsgId {
				status = m.Status
			}
		}
		if status != knot.MessagePending {
			Out.Printf("%s [%s]", clientMsgId, status)
			return
		}
		if end.Before(time.Now()) {
			Err.Fatalf("No acknowledgment for %s", clientMsgId)
		}
		time.Sleep(250 * time.Millisecond)
	}
}

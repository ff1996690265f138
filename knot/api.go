package knot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R])
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

// ApiEnvelope is the response wrapper every snapshot endpoint returns.
// `Data` is loosely typed; each caller normalizes its own shapes.
type ApiEnvelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (self *ApiEnvelope) errorMessage(fallback string) string {
	if self.Message != "" {
		return self.Message
	}
	if self.Error != "" {
		return self.Error
	}
	return fallback
}

type KnotApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string

	accessToken string
}

func NewKnotApi(apiUrl string) *KnotApi {
	return NewKnotApiWithContext(context.Background(), apiUrl)
}

func NewKnotApiWithContext(ctx context.Context, apiUrl string) *KnotApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &KnotApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: apiUrl,
	}
}

// this gets attached to api calls that need it
func (self *KnotApi) SetAccessToken(accessToken string) {
	self.accessToken = accessToken
}

type AuthLoginCallback apiCallback[*AuthLoginResult]

type AuthLoginArgs struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthLoginResult struct {
	AccessToken  string
	RefreshToken string
	UserId       Id
}

func (self *KnotApi) AuthLogin(authLogin *AuthLoginArgs, callback AuthLoginCallback) {
	go func() {
		result, err := self.AuthLoginSync(authLogin)
		callback.Result(result, err)
	}()
}

func (self *KnotApi) AuthLoginSync(authLogin *AuthLoginArgs) (*AuthLoginResult, error) {
	envelope, err := post(
		self.ctx,
		fmt.Sprintf("%s/api/auth/login", self.apiUrl),
		authLogin,
		self.accessToken,
		&ApiEnvelope{},
		NewNoopApiCallback[*ApiEnvelope](),
	)
	if err != nil {
		return nil, err
	}
	if !envelope.Success {
		return nil, errors.New(envelope.errorMessage("Login failed"))
	}
	obj, err := parseJsonObject(envelope.Data)
	if err != nil {
		return nil, fmt.Errorf("unexpected login response: %s", err)
	}
	result := &AuthLoginResult{}
	result.AccessToken, _ = obj.stringField("accessToken")
	if result.AccessToken == "" {
		result.AccessToken, _ = obj.stringField("token")
	}
	if result.AccessToken == "" {
		return nil, errors.New("login response carries no access token")
	}
	result.RefreshToken, _ = obj.stringField("refreshToken")
	result.UserId, _ = obj.intField("userId")
	return result, nil
}

type FetchFriendSnapshotCallback apiCallback[*FriendSnapshot]

// FetchFriendSnapshot fetches the canonical friend and request lists.
// Requires an access token; without one the fetch fails immediately and
// is not retried here.
func (self *KnotApi) FetchFriendSnapshot(callback FetchFriendSnapshotCallback) {
	go func() {
		snapshot, err := self.FetchFriendSnapshotSync()
		callback.Result(snapshot, err)
	}()
}

func (self *KnotApi) FetchFriendSnapshotSync() (*FriendSnapshot, error) {
	if self.accessToken == "" {
		return nil, errors.New("not authenticated; unable to fetch friends")
	}
	accessToken, err := ParseAccessTokenUnverified(self.accessToken)
	if err != nil {
		return nil, fmt.Errorf("not authenticated; unable to fetch friends: %s", err)
	}

	friendEnvelope, err := get(
		self.ctx,
		fmt.Sprintf("%s/api/friends/list", self.apiUrl),
		self.accessToken,
		&ApiEnvelope{},
		NewNoopApiCallback[*ApiEnvelope](),
	)
	if err != nil {
		return nil, err
	}
	if !friendEnvelope.Success {
		return nil, errors.New(friendEnvelope.errorMessage("Failed to load friend list"))
	}
	friends := parseFriendSummaries(friendEnvelope.Data)

	requestEnvelope, err := get(
		self.ctx,
		fmt.Sprintf("%s/api/friends/request/list", self.apiUrl),
		self.accessToken,
		&ApiEnvelope{},
		NewNoopApiCallback[*ApiEnvelope](),
	)
	if err != nil {
		return nil, err
	}
	if !requestEnvelope.Success {
		return nil, errors.New(requestEnvelope.errorMessage("Failed to load friend requests"))
	}
	now := time.Now().UnixMilli()
	incoming, outgoing := parseRequestLists(requestEnvelope.Data, accessToken.UserId, now)

	return &FriendSnapshot{
		Friends:          friends,
		IncomingRequests: incoming,
		OutgoingRequests: outgoing,
	}, nil
}

// parseFriendSummaries tolerates a raw array or `{items|data: [...]}`.
func parseFriendSummaries(data json.RawMessage) []FriendSummary {
	array := looseArray(data, "items", "data")
	friends := []FriendSummary{}
	for _, item := range array {
		obj, err := parseJsonObject(item)
		if err != nil {
			continue
		}
		friend, ok := parseFriendSummary(obj)
		if ok {
			friends = append(friends, friend)
		}
	}
	return sortFriendsByDisplayName(dedupFriends(friends))
}

func parseFriendSummary(obj jsonObject) (FriendSummary, bool) {
	friend := FriendSummary{}
	nested, _ := obj.objectField("friend")

	userId, ok := obj.intField("userId")
	if !ok && nested != nil {
		userId, ok = nested.intField("userId")
	}
	if !ok {
		return friend, false
	}
	friend.UserId = userId

	friend.Username, ok = obj.stringField("username")
	if !ok && nested != nil {
		friend.Username, _ = nested.stringField("username")
	}
	friend.AvatarUrl, ok = obj.stringField("avatarUrl")
	if !ok && nested != nil {
		friend.AvatarUrl, _ = nested.stringField("avatarUrl")
	}
	friend.ConvId, ok = obj.intField("convId")
	if !ok {
		if conversation, ok := obj.objectField("conversation"); ok {
			friend.ConvId, _ = conversation.intField("id")
		}
	}
	friend.Since, ok = obj.intField("since")
	if !ok {
		friend.Since, _ = obj.intField("createdAt")
	}
	return friend, true
}

// parseRequestLists tolerates every historical shape: a raw array, or
// an object with any of `incoming`, `outgoing`, `requests`, or a nested
// `data` array/object of the same.
func parseRequestLists(data json.RawMessage, selfId Id, now int64) ([]FriendRequest, []FriendRequest) {
	incoming := []FriendRequest{}
	outgoing := []FriendRequest{}

	addRequests := func(items []json.RawMessage) {
		for _, item := range items {
			obj, err := parseJsonObject(item)
			if err != nil {
				continue
			}
			request, ok := parseFriendRequest(obj, selfId, now)
			if !ok {
				continue
			}
			if request.Incoming {
				incoming = append(incoming, request)
			} else {
				outgoing = append(outgoing, request)
			}
		}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err == nil && items != nil {
		addRequests(items)
	} else if obj, err := parseJsonObject(data); err == nil {
		if items, ok := obj.arrayField("incoming"); ok {
			addRequests(items)
		}
		if items, ok := obj.arrayField("outgoing"); ok {
			addRequests(items)
		}
		if items, ok := obj.arrayField("requests"); ok {
			addRequests(items)
		}
		if dataRaw, ok := obj["data"]; ok {
			if err := json.Unmarshal(dataRaw, &items); err == nil && items != nil {
				addRequests(items)
			} else if dataObj, err := parseJsonObject(dataRaw); err == nil {
				if items, ok := dataObj.arrayField("incoming"); ok {
					addRequests(items)
				}
				if items, ok := dataObj.arrayField("outgoing"); ok {
					addRequests(items)
				}
			}
		}
	}

	incoming = sortRequestsByCreatedAtDesc(dedupRequests(incoming))
	outgoing = sortRequestsByCreatedAtDesc(dedupRequests(outgoing))
	return incoming, outgoing
}

func parseFriendRequest(obj jsonObject, selfId Id, now int64) (FriendRequest, bool) {
	request := FriendRequest{
		RequesterId: -1,
		ReceiverId:  -1,
		CreatedAt:   now,
	}

	requestId, ok := obj.intField("requestId")
	if !ok {
		return request, false
	}
	request.RequestId = requestId

	requester, _ := obj.objectField("requester")
	receiver, _ := obj.objectField("receiver")

	if requesterId, ok := obj.intField("requesterId"); ok {
		request.RequesterId = requesterId
	} else if requester != nil {
		if requesterId, ok := requester.intField("userId"); ok {
			request.RequesterId = requesterId
		}
	}
	if receiverId, ok := obj.intField("receiverId"); ok {
		request.ReceiverId = receiverId
	} else if receiver != nil {
		if receiverId, ok := receiver.intField("userId"); ok {
			request.ReceiverId = receiverId
		}
	}

	request.Message, _ = obj.stringField("message")
	if statusCode, ok := obj.intField("status"); ok {
		request.Status = FriendRequestStatusFromCode(statusCode)
	}
	if createdAt, ok := obj.intField("createdAt"); ok {
		request.CreatedAt = createdAt
	}
	request.ConvId, ok = obj.intField("convId")
	if !ok {
		if conversation, ok := obj.objectField("conversation"); ok {
			request.ConvId, _ = conversation.intField("id")
		}
	}

	request.RequesterName, ok = obj.stringField("requesterName")
	if !ok && requester != nil {
		request.RequesterName, _ = requester.stringField("username")
	}
	request.RequesterAvatar, ok = obj.stringField("requesterAvatar")
	if !ok && requester != nil {
		request.RequesterAvatar, _ = requester.stringField("avatarUrl")
	}
	request.ReceiverName, ok = obj.stringField("receiverName")
	if !ok && receiver != nil {
		request.ReceiverName, _ = receiver.stringField("username")
	}

	if explicit, ok := obj.boolField("isIncoming"); ok {
		request.Incoming = explicit
	} else if request.ReceiverId == selfId {
		request.Incoming = true
	} else if request.RequesterId == selfId {
		request.Incoming = false
	} else {
		request.Incoming = true
	}

	return request, true
}

func looseArray(data json.RawMessage, objectKeys ...string) []json.RawMessage {
	if len(data) == 0 {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err == nil {
		return items
	}
	obj, err := parseJsonObject(data)
	if err != nil {
		return nil
	}
	for _, key := range objectKeys {
		if items, ok := obj.arrayField(key); ok {
			return items
		}
	}
	return nil
}

func post[R any](ctx context.Context, url string, args any, accessToken string, result R, callback apiCallback[R]) (R, error) {
	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			var empty R
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")

	if accessToken != "" {
		auth := fmt.Sprintf("Bearer %s", accessToken)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)

	if http.StatusOK != r.StatusCode {
		// the response body is the error message
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	if err != nil {
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}

func get[R any](ctx context.Context, url string, accessToken string, result R, callback apiCallback[R]) (R, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	if accessToken != "" {
		auth := fmt.Sprintf("Bearer %s", accessToken)
		req.Header.Add("Authorization", auth)
	}

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	responseBodyBytes, err := io.ReadAll(r.Body)
	r.Body.Close()

	if http.StatusOK != r.StatusCode {
		errorMessage := strings.TrimSpace(string(responseBodyBytes))
		err = errors.New(errorMessage)
		callback.Result(result, err)
		return result, err
	}

	err = json.Unmarshal(responseBodyBytes, &result)
	if err != nil {
		var empty R
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(result, nil)
	return result, nil
}

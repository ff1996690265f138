package knot

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// The wire schema has evolved; several logical fields arrive under more
// than one historical name. The alias chains are centralized here and
// looked up by logical name, never duplicated at call sites.
var fieldAliases = map[string][]string{
	"convId":      {"convId", "conversationId"},
	"fromUid":     {"fromUid", "fromUserId"},
	"content":     {"contentText", "content", "text"},
	"serverTime":  {"serverTime", "timestamp"},
	"requestId":   {"requestId", "id"},
	"requesterId": {"requesterId"},
	"receiverId":  {"receiverId"},
	"createdAt":   {"createdAtMs", "createdAt", "timestamp"},
	"message":     {"message", "remark"},
	"status":      {"status", "state"},
	"clientMsgId": {"clientMsgId", "clientMessageId"},
}

func aliasesOf(name string) []string {
	if aliases, ok := fieldAliases[name]; ok {
		return aliases
	}
	return []string{name}
}

// a loosely typed json object with alias-chain field lookup
type jsonObject map[string]json.RawMessage

func parseJsonObject(raw []byte) (jsonObject, error) {
	var obj jsonObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("expected a json object")
	}
	return obj, nil
}

func (self jsonObject) stringField(name string) (string, bool) {
	for _, alias := range aliasesOf(name) {
		raw, ok := self[alias]
		if !ok || string(raw) == "null" {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, true
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String(), true
		}
	}
	return "", false
}

func (self jsonObject) intField(name string) (int64, bool) {
	for _, alias := range aliasesOf(name) {
		raw, ok := self[alias]
		if !ok || string(raw) == "null" {
			continue
		}
		var n int64
		if err := json.Unmarshal(raw, &n); err == nil {
			return n, true
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return int64(f), true
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

func (self jsonObject) boolField(name string) (bool, bool) {
	for _, alias := range aliasesOf(name) {
		raw, ok := self[alias]
		if !ok || string(raw) == "null" {
			continue
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return b, true
		}
	}
	return false, false
}

func (self jsonObject) objectField(name string) (jsonObject, bool) {
	for _, alias := range aliasesOf(name) {
		raw, ok := self[alias]
		if !ok {
			continue
		}
		if obj, err := parseJsonObject(raw); err == nil {
			return obj, true
		}
	}
	return nil, false
}

func (self jsonObject) arrayField(name string) ([]json.RawMessage, bool) {
	for _, alias := range aliasesOf(name) {
		raw, ok := self[alias]
		if !ok {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err == nil {
			return items, true
		}
	}
	return nil, false
}

// DecodeFrame parses one text frame into a typed event. A malformed
// frame yields an `InfoEvent` with `IsError` set rather than a failure,
// so a bad frame can never break the consumer loop. An unrecognized
// discriminant yields nil, for forward compatibility with event types
// this client does not know about yet.
func DecodeFrame(raw string) Event {
	obj, err := parseJsonObject([]byte(raw))
	if err != nil {
		return &InfoEvent{
			Message: fmt.Sprintf("Failed to parse frame: %s", err),
			IsError: true,
		}
	}

	eventType, ok := obj.stringField("type")
	if !ok {
		return nil
	}

	switch strings.ToUpper(eventType) {
	case "FRIEND_REQUEST_NEW":
		return decodeFriendRequestNew(obj)
	case "FRIEND_REQUEST_ACK":
		return decodeFriendRequestAck(obj)
	case "FRIEND_ADDED":
		return decodeFriendAdded(obj)
	case "FRIEND_REQUEST_LIST":
		return decodeFriendRequestList(obj)
	case "FRIEND_LIST":
		return decodeFriendList(obj)
	case "MSG_NEW":
		return decodeChatIncoming(obj)
	case "MSG_ACK":
		return decodeChatAck(obj)
	case "MSG_ERROR":
		return decodeChatError(obj)
	default:
		return nil
	}
}

func decodeFriendUser(obj jsonObject) *FriendUser {
	userId, ok := obj.intField("userId")
	if !ok {
		return nil
	}
	username, _ := obj.stringField("username")
	avatarUrl, _ := obj.stringField("avatarUrl")
	return &FriendUser{
		UserId:    userId,
		Username:  username,
		AvatarUrl: avatarUrl,
	}
}

func decodeFriendRequestNew(obj jsonObject) Event {
	requestId, ok := obj.intField("requestId")
	if !ok {
		return nil
	}
	event := &FriendRequestNewEvent{
		RequestId: requestId,
	}
	event.Timestamp, _ = obj.intField("timestamp")
	event.Message, _ = obj.stringField("message")
	event.ReceiverId, _ = obj.intField("receiverId")
	if fromObj, ok := obj.objectField("fromUser"); ok {
		event.From = decodeFriendUser(fromObj)
	}
	return event
}

func decodeFriendRequestAck(obj jsonObject) Event {
	status, ok := obj.stringField("status")
	if !ok {
		return nil
	}
	event := &FriendRequestAckEvent{
		Status: strings.ToLower(status),
	}
	event.RequestId, _ = obj.intField("requestId")
	event.Timestamp, _ = obj.intField("timestamp")
	event.ConvId, _ = obj.intField("convId")
	event.Message, _ = obj.stringField("message")
	return event
}

func decodeFriendAdded(obj jsonObject) Event {
	friendObj, ok := obj.objectField("friend")
	if !ok {
		return nil
	}
	friend := decodeFriendUser(friendObj)
	if friend == nil {
		return nil
	}
	event := &FriendAddedEvent{
		Friend: friend,
	}
	event.RequestId, _ = obj.intField("requestId")
	event.ConvId, _ = obj.intField("convId")
	event.Timestamp, _ = obj.intField("timestamp")
	return event
}

func decodeFriendRequestList(obj jsonObject) Event {
	selfId, ok := obj.intField("selfId")
	if !ok {
		return nil
	}
	items, ok := obj.arrayField("requests")
	if !ok {
		return nil
	}
	event := &FriendRequestListEvent{
		SelfId: selfId,
	}
	for _, item := range items {
		itemObj, err := parseJsonObject(item)
		if err != nil {
			continue
		}
		requestId, ok := itemObj.intField("requestId")
		if !ok {
			continue
		}
		request := FriendRequest{
			RequestId:   requestId,
			RequesterId: -1,
			ReceiverId:  -1,
		}
		if requesterId, ok := itemObj.intField("requesterId"); ok {
			request.RequesterId = requesterId
		}
		if receiverId, ok := itemObj.intField("receiverId"); ok {
			request.ReceiverId = receiverId
		}
		request.Message, _ = itemObj.stringField("message")
		if statusCode, ok := itemObj.intField("status"); ok {
			request.Status = FriendRequestStatusFromCode(statusCode)
		}
		request.CreatedAt, _ = itemObj.intField("createdAt")
		request.ConvId, _ = itemObj.intField("convId")
		event.Requests = append(event.Requests, request)
	}
	return event
}

func decodeFriendList(obj jsonObject) Event {
	items, ok := obj.arrayField("friends")
	if !ok {
		return nil
	}
	event := &FriendListEvent{}
	for _, item := range items {
		itemObj, err := parseJsonObject(item)
		if err != nil {
			continue
		}
		userId, ok := itemObj.intField("userId")
		if !ok {
			continue
		}
		friend := FriendSummary{
			UserId: userId,
		}
		friend.Username, _ = itemObj.stringField("username")
		friend.AvatarUrl, _ = itemObj.stringField("avatarUrl")
		friend.ConvId, _ = itemObj.intField("convId")
		friend.Since, _ = itemObj.intField("since")
		event.Friends = append(event.Friends, friend)
	}
	return event
}

func decodeChatIncoming(obj jsonObject) Event {
	convId, ok := obj.intField("convId")
	if !ok {
		return nil
	}
	fromUid, ok := obj.intField("fromUid")
	if !ok {
		return nil
	}
	event := &ChatIncomingEvent{
		ConvId:  convId,
		FromUid: fromUid,
	}
	event.MsgId, _ = obj.intField("msgId")
	event.Content, _ = obj.stringField("content")
	event.ServerTime, _ = obj.intField("serverTime")
	return event
}

func decodeChatAck(obj jsonObject) Event {
	clientMsgId, ok := obj.stringField("clientMsgId")
	if !ok {
		return nil
	}
	event := &ChatAckEvent{
		ClientMsgId: clientMsgId,
	}
	event.MsgId, _ = obj.intField("msgId")
	event.ServerTime, _ = obj.intField("serverTime")
	return event
}

func decodeChatError(obj jsonObject) Event {
	event := &ChatErrorEvent{
		Message: "Message failed",
	}
	if message, ok := obj.stringField("message"); ok {
		event.Message = message
	}
	event.ClientMsgId, _ = obj.stringField("clientMsgId")
	return event
}

package subscription

import (
	"encoding/json"
	"time"
)

const (
	MethodSignatureNotification = "signatureNotification"
	MethodSlotNotification      = "slotNotification"
)

// Envelope is one notification published to every connection. Connections forward it only
// when they own SubscriptionID.
type Envelope struct {
	SubscriptionID ID
	Method         string
	// IsFinal marks the last notification for SubscriptionID; owners release it on receipt.
	IsFinal   bool
	Payload   json.RawMessage
	CreatedAt time.Time
}

type notification struct {
	JSONRPC string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  notificationParams `json:"params"`
}

type notificationParams struct {
	Result       interface{} `json:"result"`
	Subscription ID          `json:"subscription"`
}

type rpcContext struct {
	Slot uint64 `json:"slot"`
}

type signatureResult struct {
	Context rpcContext     `json:"context"`
	Value   signatureValue `json:"value"`
}

type signatureValue struct {
	// null when the transaction succeeded
	Err *string `json:"err"`
}

type slotResult struct {
	Parent uint64 `json:"parent"`
	Root   uint64 `json:"root"`
	Slot   uint64 `json:"slot"`
}

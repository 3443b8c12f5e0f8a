package session

import (
	"encoding/json"
	"regexp"
	"strings"
)

// SignalKind classifies a normalized checkout message
type SignalKind string

const (
	SignalSuccess      SignalKind = "success"
	SignalFailure      SignalKind = "failure"
	SignalPending      SignalKind = "pending"
	SignalExternalApp  SignalKind = "external_app"
	SignalUnrecognized SignalKind = "unrecognized"
)

// Signal is a typed event derived from one raw checkout message. It never
// merges fields from two messages.
type Signal struct {
	Kind            SignalKind
	TransactionID   string
	MerchantOrderID string
	OrderID         string
	Error           string
	URL             string
	AppHint         string
}

// BridgeFrame is the wire envelope the checkout surface sends the host:
// console lines, cross-document messages, navigation URLs and the handler
// handshake all arrive in this shape.
type BridgeFrame struct {
	Kind    string `json:"kind"`
	Payload string `json:"payload"`
}

// DecodeBridgeFrame parses the bridge envelope
func DecodeBridgeFrame(raw []byte) (BridgeFrame, bool) {
	var f BridgeFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return BridgeFrame{}, false
	}
	if f.Kind == "" {
		return BridgeFrame{}, false
	}
	return f, true
}

var (
	appURLPattern = regexp.MustCompile(`(?i)(intent:|upi://|upi:)[^\s"<>]+`)
	statusProbe   = regexp.MustCompile(`"status"\s*:\s*"([^"]*)"`)
)

// outcomeMessage is the superset of fields the checkout page is known to emit
type outcomeMessage struct {
	Status          string `json:"status"`
	MerchantOrderID string `json:"merchantOrderId"`
	TransactionID   string `json:"transactionId"`
	OrderID         string `json:"orderId"`
	Error           string `json:"error"`
	Kind            string `json:"kind"`
	Payload         struct {
		URL string `json:"url"`
		App string `json:"app"`
	} `json:"payload"`
}

// Parse normalizes one raw checkout message into a Signal. Rules are ordered
// and first match wins: structured JSON is authoritative, free-text scanning
// is best-effort fallback only applied when structured decode fails.
func Parse(raw string) Signal {
	t := strings.TrimSpace(raw)
	if t == "" {
		return Signal{Kind: SignalUnrecognized}
	}

	// 1. Structured JSON
	if strings.HasPrefix(t, "{") {
		var msg outcomeMessage
		if err := json.Unmarshal([]byte(t), &msg); err == nil {
			if sig, ok := classifyStatus(msg.Status, msg); ok {
				return sig
			}
			if strings.EqualFold(msg.Kind, "upi_intent") && msg.Payload.URL != "" {
				return Signal{
					Kind:    SignalExternalApp,
					URL:     msg.Payload.URL,
					AppHint: msg.Payload.App,
				}
			}
			return Signal{Kind: SignalUnrecognized}
		}
	}

	// 2. Free-text scan for an app-launch URL
	low := strings.ToLower(t)
	if strings.Contains(low, "upi:") || strings.Contains(low, "intent:") || strings.Contains(low, "upi://") {
		if found := appURLPattern.FindString(t); found != "" {
			return Signal{Kind: SignalExternalApp, URL: found}
		}
	}

	// 3. Permissive single-field status probe. Known fragility kept for
	// compatibility: a stray "status" in unrelated text can match.
	if m := statusProbe.FindStringSubmatch(t); m != nil {
		if sig, ok := classifyStatus(m[1], outcomeMessage{}); ok {
			return sig
		}
	}

	return Signal{Kind: SignalUnrecognized}
}

// classifyStatus applies the status substring precedence rules
func classifyStatus(status string, msg outcomeMessage) (Signal, bool) {
	if status == "" {
		return Signal{}, false
	}
	low := strings.ToLower(status)

	switch {
	case strings.Contains(low, "success"):
		return Signal{
			Kind:            SignalSuccess,
			TransactionID:   msg.TransactionID,
			MerchantOrderID: msg.MerchantOrderID,
			OrderID:         msg.OrderID,
		}, true
	case strings.Contains(low, "fail"), strings.Contains(low, "error"):
		errMsg := msg.Error
		if errMsg == "" {
			errMsg = "payment failed"
		}
		return Signal{Kind: SignalFailure, Error: errMsg}, true
	case strings.Contains(low, "pending"):
		return Signal{Kind: SignalPending}, true
	}
	return Signal{}, false
}

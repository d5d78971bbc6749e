package whatsapp

import (
	"fmt"
	"net/http"
)

// SendMessageRequest Cloud API 发送消息请求体
type SendMessageRequest struct {
	MessagingProduct string    `json:"messaging_product"`
	RecipientType    string    `json:"recipient_type,omitempty"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             *TextBody `json:"text,omitempty"`
}

type TextBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

// SendMessageResponse Cloud API 响应
type SendMessageResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// ErrorResponse Cloud API 错误体
type ErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// APIError is a non-2xx answer from the provider.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("whatsapp API error [%d/%d]: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("whatsapp API error [%d]: %s", e.Status, e.Message)
}

// Temporary reports whether retrying may help (throttling or server side).
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

package transport

import (
	"context"
	"net/url"
	"strings"
)

// Sender pushes a plain text message to one chat destination.
//
// A destination is an opaque platform id: a LINE user/group/room id, or
// "tg:<chat>[:<thread>]" for Telegram.
type Sender interface {
	Send(ctx context.Context, destination, text string) error
}

// Links are the three web entry points offered by the chat menu.
type Links struct {
	Register string
	Status   string
	History  string
}

// NewLinks builds the menu links for destination under the public base URL.
func NewLinks(baseURL, destination string) Links {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	q := "?line_id=" + url.QueryEscape(destination)
	return Links{
		Register: base + "/register" + q,
		Status:   base + "/status" + q,
		History:  base + "/history" + q,
	}
}

// MenuTitle is the headline shown above the menu buttons on every platform.
const MenuTitle = "เครื่องวัดอุณหภูมิและความชื้นสัมพัทธ์อัตโนมัติ"

// MenuAltText is the notification preview text for the menu card.
const MenuAltText = "เมนูจัดการอุปกรณ์วัดอุณหภูมิ/ความชื้น"

// Button labels, in menu order.
const (
	LabelRegister = "ตั้งค่าอุปกรณ์"
	LabelStatus   = "ดูสถานะล่าสุด"
	LabelHistory  = "ดูประวัติ & กราฟ"
)

// IsMenuCommand reports whether an inbound chat text asks for the device menu.
func IsMenuCommand(text string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "/ht")
}

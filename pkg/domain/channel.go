package domain

import "fmt"

// Channel is a messaging channel a lead can be reached on.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelWeChat   Channel = "wechat"
	ChannelEmail    Channel = "email"
)

// ParseChannel validates a raw channel string.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelWhatsApp, ChannelWeChat, ChannelEmail:
		return Channel(s), nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

func (c Channel) String() string { return string(c) }

// Valid reports whether the channel is one of the supported values.
func (c Channel) Valid() bool {
	_, err := ParseChannel(string(c))
	return err == nil
}

package reconcile

import (
	"fmt"

	"github.com/astromechza/wishboard/pkg/wish"
)

type Kind int

const (
	KindConnected Kind = iota + 1
	KindDisconnected
	KindAllWishes
	KindNewWish
	KindWishDeleted
	KindAllCleared
	KindSpotlight
	KindSpotlightOff
	KindThemeChange
)

var kindNames = map[Kind]string{
	KindConnected:    "connected",
	KindDisconnected: "disconnected",
	KindAllWishes:    string(wish.ChannelAllWishes),
	KindNewWish:      string(wish.ChannelNewWish),
	KindWishDeleted:  string(wish.ChannelWishDeleted),
	KindAllCleared:   string(wish.ChannelAllCleared),
	KindSpotlight:    string(wish.ChannelSpotlight),
	KindSpotlightOff: string(wish.ChannelSpotlightOff),
	KindThemeChange:  string(wish.ChannelThemeChange),
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// incremental kinds are held back until the board has a snapshot.
func (k Kind) incremental() bool {
	switch k {
	case KindNewWish, KindWishDeleted, KindAllCleared, KindSpotlight, KindSpotlightOff:
		return true
	}
	return false
}

// Message is one tagged input to the machine. Only the fields relevant to
// Kind are set.
type Message struct {
	Kind   Kind
	Wish   wish.Wish
	Wishes []wish.Wish
	ID     string
	Theme  string
}

func Connected() Message    { return Message{Kind: KindConnected} }
func Disconnected() Message { return Message{Kind: KindDisconnected} }

// FromEnvelope converts a relay frame into a message.
func FromEnvelope(env wish.Envelope) (Message, error) {
	switch env.Type {
	case wish.ChannelAllWishes:
		var wishes []wish.Wish
		if len(env.Payload) > 0 && string(env.Payload) != "null" {
			if err := env.Into(&wishes); err != nil {
				return Message{}, err
			}
		}
		return Message{Kind: KindAllWishes, Wishes: wishes}, nil
	case wish.ChannelNewWish, wish.ChannelSpotlight:
		var w wish.Wish
		if err := env.Into(&w); err != nil {
			return Message{}, err
		}
		if w.ID == "" {
			return Message{}, fmt.Errorf("%s payload has no id", env.Type)
		}
		kind := KindNewWish
		if env.Type == wish.ChannelSpotlight {
			kind = KindSpotlight
		}
		return Message{Kind: kind, Wish: w}, nil
	case wish.ChannelWishDeleted:
		var d wish.Deleted
		if err := env.Into(&d); err != nil {
			return Message{}, err
		}
		if d.ID == "" {
			return Message{}, fmt.Errorf("%s payload has no id", env.Type)
		}
		return Message{Kind: KindWishDeleted, ID: d.ID}, nil
	case wish.ChannelAllCleared:
		return Message{Kind: KindAllCleared}, nil
	case wish.ChannelSpotlightOff:
		return Message{Kind: KindSpotlightOff}, nil
	case wish.ChannelThemeChange:
		var th wish.Theme
		if err := env.Into(&th); err != nil {
			return Message{}, err
		}
		return Message{Kind: KindThemeChange, Theme: th.Theme}, nil
	default:
		return Message{}, fmt.Errorf("unexpected channel %q", env.Type)
	}
}

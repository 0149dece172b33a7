package messaging

import (
	"encoding/json"
	"fmt"
)

// ItemEvent is the payload routed between worlds when one player picks up
// an item that belongs to another.
type ItemEvent struct {
	Item     string `json:"item"`
	From     string `json:"from"`
	Location string `json:"location"`
}

// ItemBus routes item events within a single multiworld session. Each
// destination player gets a dedicated subject so subscriptions can come and
// go with the session membership.
type ItemBus struct {
	broker *Broker
}

func NewItemBus(broker *Broker) *ItemBus {
	return &ItemBus{broker: broker}
}

func playerSubject(mwID string, player int) string {
	return fmt.Sprintf("mw.%s.player.%d", mwID, player)
}

func (ib *ItemBus) PublishItem(mwID string, player int, ev ItemEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding item event: %w", err)
	}
	return ib.broker.Publish(playerSubject(mwID, player), data)
}

// SubscribeItems registers a handler for item events destined for one player
// in one multiworld. Malformed payloads are dropped. Returns an unsubscribe
// function.
func (ib *ItemBus) SubscribeItems(mwID string, player int, handler func(ItemEvent)) (func(), error) {
	return ib.broker.Subscribe(playerSubject(mwID, player), func(data []byte) {
		var ev ItemEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		handler(ev)
	})
}

package service

import (
	"math/big"
	"time"

	"bridge-relay/internal/event"
	"bridge-relay/internal/model"
	"bridge-relay/internal/relay"
	"bridge-relay/internal/status"
	"bridge-relay/pkg/network"
	"bridge-relay/pkg/units"

	"github.com/ethereum/go-ethereum/common/math"
)

// newCompletedEvent Settlement -> 推送消息，金额统一换算成 ETH
func newCompletedEvent(s relay.Settlement, registry *network.Registry) event.RelayCompletedEvent {
	hash := s.Completed.Hash.Hex()
	ev := event.RelayCompletedEvent{
		Type:       event.TypeRelayCompleted,
		QueueID:    s.Queued.ID,
		TxHash:     hash,
		To:         s.Queued.Params.To,
		Value:      units.FormatQuantity(s.Queued.Params.Value),
		GasCost:    units.FormatEther(s.GasCost),
		TotalValue: units.FormatEther(s.Total),
		Topic:      s.Queued.Topic,
		RequestID:  s.Queued.RequestID,
		Network:    s.Network,
		Mode:       string(s.Mode),
		Reverted:   s.Reverted,
		At:         s.Completed.Timestamp,
	}
	if registry != nil {
		if n, ok := registry.Get(s.Network); ok {
			ev.L1TxURL = n.L1TxURL(hash)
		}
	}
	return ev
}

func newStatusEvent(u status.Update) event.StatusEvent {
	at := u.At
	if at.IsZero() {
		at = time.Now()
	}
	return event.StatusEvent{
		Type:      event.TypeStatus,
		Text:      u.Text,
		Connected: u.Connected,
		At:        at,
	}
}

// newRelayRecord Settlement -> 归档行，金额保持 wei
func newRelayRecord(s relay.Settlement) model.RelayRecord {
	value := big.NewInt(0)
	if v, ok := math.ParseBig256(s.Queued.Params.Value); ok {
		value = v
	}
	completedAt := s.Completed.Timestamp
	if completedAt.IsZero() {
		completedAt = time.Now()
	}
	return model.RelayRecord{
		QueueID:     s.Queued.ID,
		TxHash:      s.Completed.Hash.Hex(),
		ToAddress:   s.Queued.Params.To,
		Value:       units.WeiToDecimal(value),
		GasCost:     units.WeiToDecimal(s.GasCost),
		TotalValue:  units.WeiToDecimal(s.Total),
		Topic:       s.Queued.Topic,
		RequestID:   s.Queued.RequestID,
		Network:     s.Network,
		Mode:        string(s.Mode),
		Reverted:    s.Reverted,
		CompletedAt: completedAt,
	}
}

package receiver

import (
	"github.com/google/uuid"

	"github.com/gridexchange/edi-gateway/incoming"
)

// InitializeProcessesCommand carries one InitializeProcessCommand per series
// of an accepted message. The commands of a message are dispatched together
// so that either all or none of them reach the process layer.
type InitializeProcessesCommand struct {
	MessageID    string                     `json:"messageId"`
	DocumentType string                     `json:"documentType"`
	Commands     []InitializeProcessCommand `json:"commands"`
}

// Name is the name the command is dispatched under.
func (c InitializeProcessesCommand) Name() string {
	return "Initialize" + c.DocumentType + "Processes"
}

func newInitializeProcessesCommand(msg *incoming.Message) InitializeProcessesCommand {
	cmds := make([]InitializeProcessCommand, 0, len(msg.Series))
	for _, s := range msg.Series {
		cmds = append(cmds, newInitializeProcessCommand(msg, s))
	}
	return InitializeProcessesCommand{
		MessageID:    msg.Header.MessageID,
		DocumentType: msg.DocumentType.String(),
		Commands:     cmds,
	}
}

// InitializeProcessCommand asks the process layer to start handling one
// accepted series.
type InitializeProcessCommand struct {
	ProcessID      uuid.UUID     `json:"processId"`
	DocumentType   string        `json:"documentType"`
	MessageID      string        `json:"messageId"`
	SenderID       string        `json:"senderId"`
	SenderRole     string        `json:"senderRole"`
	BusinessReason string        `json:"businessReason"`
	Series         commandSeries `json:"series"`
}

type commandSeries struct {
	TransactionID        string              `json:"transactionId"`
	GridArea             *string             `json:"gridArea,omitempty"`
	MeteringPointType    *string             `json:"meteringPointType,omitempty"`
	SettlementMethod     *string             `json:"settlementMethod,omitempty"`
	Start                string              `json:"start"`
	End                  *string             `json:"end,omitempty"`
	EnergySupplierID     *string             `json:"energySupplierId,omitempty"`
	BalanceResponsibleID *string             `json:"balanceResponsibleId,omitempty"`
	SettlementVersion    *string             `json:"settlementVersion,omitempty"`
	ChargeOwner          *string             `json:"chargeOwner,omitempty"`
	Resolution           *string             `json:"resolution,omitempty"`
	ChargeTypes          []commandChargeType `json:"chargeTypes,omitempty"`
}

type commandChargeType struct {
	ID   *string `json:"id,omitempty"`
	Type *string `json:"type,omitempty"`
}

func newInitializeProcessCommand(msg *incoming.Message, s incoming.Series) InitializeProcessCommand {
	cts := make([]commandChargeType, 0, len(s.ChargeTypes))
	for _, ct := range s.ChargeTypes {
		cts = append(cts, commandChargeType{ID: ct.ID, Type: ct.Type})
	}
	return InitializeProcessCommand{
		ProcessID:      uuid.New(),
		DocumentType:   msg.DocumentType.String(),
		MessageID:      msg.Header.MessageID,
		SenderID:       msg.Header.SenderID,
		SenderRole:     msg.Header.SenderRole,
		BusinessReason: msg.Header.BusinessReason,
		Series: commandSeries{
			TransactionID:        s.TransactionID,
			GridArea:             s.GridArea,
			MeteringPointType:    s.MeteringPointType,
			SettlementMethod:     s.SettlementMethod,
			Start:                s.Start,
			End:                  s.End,
			EnergySupplierID:     s.EnergySupplierID,
			BalanceResponsibleID: s.BalanceResponsibleID,
			SettlementVersion:    s.SettlementVersion,
			ChargeOwner:          s.ChargeOwner,
			Resolution:           s.Resolution,
			ChargeTypes:          cts,
		},
	}
}

package agent

import "agoria/internal/packet"

// handleInfoRequest answers an INFO_REQ by looking up each requested
// field against the agent's current snapshot. Unknown fields are simply
// omitted from the response rather than erroring the whole request.
// Grounded on original_source/EconAgent.py's handleInfoRequest and
// original_source/TradeClasses.py's InfoRequest.
func (a *Agent) handleInfoRequest(p packet.Packet) {
	req, ok := p.Payload.(packet.InfoRequest)
	if !ok {
		return
	}

	snap := a.Snapshot()
	values := make(map[string]any, len(req.Fields))
	for _, field := range req.Fields {
		if v, ok := lookupField(snap, field); ok {
			values[field] = v
		}
	}
	req.Values = values

	a.sendPacket(packet.Packet{
		Type:          packet.InfoResp,
		DestinationID: p.SenderID,
		TransactionID: p.TransactionID,
		Payload:       req,
	})
}

func lookupField(s State, field string) (any, bool) {
	switch field {
	case "balance":
		return s.Balance, true
	case "inventory":
		return s.Inventory, true
	case "landHoldings":
		return s.LandHoldings, true
	case "timeTicks":
		return s.TimeTicks, true
	case "stepNum":
		return s.StepNum, true
	case "accounting":
		return s.Accounting, true
	default:
		return nil, false
	}
}

// QueryInfo asks targetAgentID for the named fields and blocks for the
// response.
func (a *Agent) QueryInfo(targetAgentID string, fields []string) (map[string]any, error) {
	transactionID := packet.NewID()
	resp, err := a.await(transactionID, packet.Packet{
		Type:          packet.InfoReq,
		DestinationID: targetAgentID,
		TransactionID: transactionID,
		Payload:       packet.InfoRequest{RequestID: transactionID, TargetAgent: targetAgentID, Fields: fields},
	})
	if err != nil {
		return nil, err
	}
	info, ok := resp.Payload.(packet.InfoRequest)
	if !ok {
		return nil, nil
	}
	return info.Values, nil
}

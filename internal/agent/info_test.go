package agent

import "testing"

func TestQueryInfoReturnsRequestedFields(t *testing.T) {
	a, b, _, _ := newPairedAgents(t, "alice", "bob")
	a.Mint(250, map[string]float64{"grain": 3}, nil)

	values, err := b.QueryInfo(a.ID(), []string{"balance", "inventory", "not-a-real-field"})
	if err != nil {
		t.Fatalf("QueryInfo: %v", err)
	}
	if values["balance"] != a.Balance() {
		t.Fatalf("balance field = %v, want %v", values["balance"], a.Balance())
	}
	if _, ok := values["not-a-real-field"]; ok {
		t.Fatalf("unknown field present in response, want omitted")
	}
}

package mq

import "testing"

func TestDLQNaming(t *testing.T) {
	if DLQExchangeName != "events.dlq" {
		t.Fatalf("DLQExchangeName = %q", DLQExchangeName)
	}
	if got := DLQQueueName("milestone.cascade.requested"); got != "milestone.cascade.requested.dlq" {
		t.Fatalf("DLQQueueName = %q", got)
	}
}

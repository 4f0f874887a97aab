package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"milestone-service/internal/model"
)

type fakeInvalidator struct {
	err   error
	calls []int64
}

func (f *fakeInvalidator) Invalidate(_ context.Context, id int64) error {
	f.calls = append(f.calls, id)
	return f.err
}

func TestInputsChangedHandler(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		err       error
		wantCalls int
		wantErr   bool
	}{
		{"invalidates", `{"milestone_id": 5, "source": "issue"}`, nil, 1, false},
		{"bad payload dropped", `not json`, nil, 0, false},
		{"zero id dropped", `{"milestone_id": 0}`, nil, 0, false},
		{"unknown milestone acked", `{"milestone_id": 5}`, model.ErrMilestoneNotFound, 1, false},
		{"transient requeued", `{"milestone_id": 5}`, errors.New("connection reset by peer"), 1, true},
		{"permanent acked", `{"milestone_id": 5}`, errors.New("boom"), 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &fakeInvalidator{err: tt.err}
			h := NewInputsChangedHandler(inv, zap.NewNop())
			err := h.Handle(context.Background(), json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(inv.calls) != tt.wantCalls {
				t.Fatalf("calls = %v", inv.calls)
			}
		})
	}
}

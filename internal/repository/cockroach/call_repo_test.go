package cockroach

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"friendclub-backend/internal/domain"
)

func TestHistoryWhere(t *testing.T) {
	tests := []struct {
		name   string
		filter domain.CallFilter
		where  string
		args   []interface{}
	}{
		{
			name:   "user only",
			filter: domain.CallFilter{UserID: "u1"},
			where:  "(caller_id = $1 OR callee_id = $1)",
			args:   []interface{}{"u1"},
		},
		{
			name:   "status and type",
			filter: domain.CallFilter{UserID: "u1", Status: domain.CallStatusMissed, CallType: domain.CallTypeVideo},
			where:  "(caller_id = $1 OR callee_id = $1) AND status = $2 AND call_type = $3",
			args:   []interface{}{"u1", "missed", "video"},
		},
		{
			name:   "type only",
			filter: domain.CallFilter{UserID: "u1", CallType: domain.CallTypeAudio},
			where:  "(caller_id = $1 OR callee_id = $1) AND call_type = $2",
			args:   []interface{}{"u1", "audio"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := historyWhere(tt.filter)
			assert.Equal(t, tt.where, where)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestNullString(t *testing.T) {
	assert.Nil(t, nullString(""))
	if s := nullString("ext-1"); assert.NotNil(t, s) {
		assert.Equal(t, "ext-1", *s)
	}
}

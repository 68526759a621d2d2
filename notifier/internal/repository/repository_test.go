package repository

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bookwise/circulation-service/pkg/kafka"
)

func TestContent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		typ  string
		want string
	}{
		{typ: "pickup_ready", want: "Copy 10 is ready for pickup"},
		{typ: "payment_due", want: "An overdue fee is pending for copy 10"},
		{typ: "return_due", want: "Copy 10 is due for return soon"},
		{typ: "something_else", want: "Reminder for copy 10"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.typ, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, content(kafka.ReminderEvent{CopyID: 10, Type: tt.typ}))
		})
	}
}

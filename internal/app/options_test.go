package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStockPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    StockPolicy
		wantErr bool
	}{
		{in: "", want: StockPolicyStrict},
		{in: "strict", want: StockPolicyStrict},
		{in: " Permissive ", want: StockPolicyPermissive},
		{in: "lenient", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStockPolicy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

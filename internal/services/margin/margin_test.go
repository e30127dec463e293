package margin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }

func TestPercent(t *testing.T) {
	tests := []struct {
		name string
		sell *float64
		buy  *float64
		want *float64
	}{
		{"typical margin", fptr(100.00), fptr(65.00), fptr(35.0)},
		{"rounded to one decimal", fptr(29.99), fptr(19.99), fptr(33.3)},
		{"negative margin", fptr(50.00), fptr(75.00), fptr(-50.0)},
		{"zero sell price", fptr(0), fptr(65.00), nil},
		{"zero buy price", fptr(100.00), fptr(0), nil},
		{"negative sell price", fptr(-10), fptr(5), nil},
		{"nil sell price", nil, fptr(65.00), nil},
		{"nil buy price", fptr(100.00), nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percent(tt.sell, tt.buy)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 0.001)
		})
	}
}

func TestAbsolute(t *testing.T) {
	got := Absolute(fptr(100.00), fptr(65.00))
	require.NotNil(t, got)
	assert.Equal(t, 35.00, *got)

	assert.Nil(t, Absolute(fptr(0), fptr(65.00)))
	assert.Nil(t, Absolute(nil, fptr(65.00)))
	assert.Nil(t, Absolute(fptr(100), nil))

	got = Absolute(fptr(29.999), fptr(10.001))
	require.NotNil(t, got)
	assert.Equal(t, 20.00, *got)
}

// Margin is nil exactly when either input is non-positive or missing;
// otherwise it equals (s-b)/s*100 to one decimal.
func TestPercentNullIffNonPositive(t *testing.T) {
	for _, sell := range []float64{-5, 0, 0.01, 10, 99.99} {
		for _, buy := range []float64{-5, 0, 0.01, 10, 99.99} {
			got := Percent(fptr(sell), fptr(buy))
			if sell <= 0 || buy <= 0 {
				assert.Nil(t, got, "sell=%v buy=%v", sell, buy)
			} else {
				require.NotNil(t, got, "sell=%v buy=%v", sell, buy)
				assert.InDelta(t, (sell-buy)/sell*100, *got, 0.05)
			}
		}
	}
}

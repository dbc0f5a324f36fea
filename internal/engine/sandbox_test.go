package engine

import (
	"math"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
)

func TestToDelayClampsToFloor(t *testing.T) {
	vm := goja.New()

	tests := []struct {
		name string
		v    goja.Value
		want time.Duration
	}{
		{"normal", vm.ToValue(250), 250 * time.Millisecond},
		{"fractional", vm.ToValue(1.5), 1500 * time.Microsecond},
		{"zero", vm.ToValue(0), time.Millisecond},
		{"negative", vm.ToValue(-10), time.Millisecond},
		{"undefined", goja.Undefined(), time.Millisecond},
		{"non-numeric string", vm.ToValue("soon"), time.Millisecond},
		{"nan", vm.ToValue(math.NaN()), time.Millisecond},
		{"positive infinity", vm.ToValue(math.Inf(1)), time.Millisecond},
		{"negative infinity", vm.ToValue(math.Inf(-1)), time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toDelay(tt.v))
		})
	}
}

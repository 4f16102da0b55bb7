package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiscountedPrice(t *testing.T) {
	tests := []struct {
		name  string
		dtype string
		value int64
		price int64
		want  int64
	}{
		{"ten percent off", DiscountPercentage, 10, 10000, 9000},
		{"percentage floors fractional cents", DiscountPercentage, 33, 999, 669},
		{"hundred percent is free", DiscountPercentage, 100, 10000, 0},
		{"percentage never goes negative", DiscountPercentage, 150, 10000, 0},
		{"fixed amount off", DiscountFixed, 2500, 10000, 7500},
		{"fixed never goes negative", DiscountFixed, 15000, 10000, 0},
		{"unknown type leaves price alone", "mystery", 50, 10000, 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Discount{DiscountType: tt.dtype, Value: tt.value}
			assert.Equal(t, tt.want, d.DiscountedPrice(tt.price))
		})
	}
}

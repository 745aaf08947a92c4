package credit

import (
	"reflect"
	"testing"
)

func TestAllocateDebit(t *testing.T) {
	tests := []struct {
		name   string
		bal    Balance
		amount float64
		want   map[Bucket]float64
	}{
		{
			name:   "subscription alone covers it",
			bal:    Balance{Subscription: 10, Purchased: 5, Granted: 5},
			amount: 4,
			want:   map[Bucket]float64{BucketSubscription: 4},
		},
		{
			name:   "spills into purchased",
			bal:    Balance{Subscription: 3, Purchased: 10, Granted: 5},
			amount: 5,
			want:   map[Bucket]float64{BucketSubscription: 3, BucketPurchased: 2},
		},
		{
			name:   "spills through all three buckets",
			bal:    Balance{Subscription: 1, Purchased: 1, Granted: 10},
			amount: 5,
			want:   map[Bucket]float64{BucketSubscription: 1, BucketPurchased: 1, BucketGranted: 3},
		},
		{
			name:   "exact total balance",
			bal:    Balance{Subscription: 2, Purchased: 2, Granted: 2},
			amount: 6,
			want:   map[Bucket]float64{BucketSubscription: 2, BucketPurchased: 2, BucketGranted: 2},
		},
		{
			name:   "zero amount debits nothing",
			bal:    Balance{Subscription: 5, Purchased: 5, Granted: 5},
			amount: 0,
			want:   map[Bucket]float64{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := allocateDebit(tt.bal, tt.amount)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("allocateDebit(%+v, %v) = %v, want %v", tt.bal, tt.amount, got, tt.want)
			}
		})
	}
}

package can

import "testing"

func TestRawIDRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		f    Frame
		raw  uint32
	}{
		{"std", Frame{ID: 0x123}, 0x123},
		{"stdMasked", Frame{ID: 0xFFFF}, 0x7FF},
		{"ext", Frame{ID: 0x1ABCDE, Extended: true}, 0x1ABCDE | CAN_EFF_FLAG},
		{"stdRemote", Frame{ID: 0x7FF, Remote: true}, 0x7FF | CAN_RTR_FLAG},
		{"extRemote", Frame{ID: 0x1FFFFFFF, Extended: true, Remote: true}, CAN_EFF_MASK | CAN_EFF_FLAG | CAN_RTR_FLAG},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.f.RawID(); got != tc.raw {
				t.Fatalf("RawID = 0x%X, want 0x%X", got, tc.raw)
			}
			var g Frame
			g.SetRawID(tc.raw)
			if g.Extended != tc.f.Extended || g.Remote != tc.f.Remote {
				t.Fatalf("SetRawID flags: got ext=%v rtr=%v", g.Extended, g.Remote)
			}
			want := tc.f.ID
			if !tc.f.Extended {
				want &= CAN_SFF_MASK
			}
			if g.ID != want {
				t.Fatalf("SetRawID id = 0x%X, want 0x%X", g.ID, want)
			}
		})
	}
}

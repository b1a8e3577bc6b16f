package quest

import (
	"math"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		msg    string
		want   Command
		wantOK bool
	}{
		{"CMD:APP_RESET", Command{Kind: CommandAppReset}, true},
		{"  CMD:RELOAD ", Command{Kind: CommandReload}, true},
		{"CMD:NAV:/shop", Command{Kind: CommandNavigate, Path: "/shop"}, true},
		{"CMD:NAV:", Command{}, false},
		{"CMD:NAV:shop", Command{}, false},
		{"CMD:EXPLODE", Command{}, false},
		{"hallo allemaal", Command{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got, ok := ParseCommand(tt.msg)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseCommand(%q) = %+v, %v; want %+v, %v", tt.msg, got, ok, tt.want, tt.wantOK)
			}
			if ok {
				back, _ := ParseCommand(got.String())
				if back != got {
					t.Errorf("round trip %q = %+v", got.String(), back)
				}
			}
		})
	}
}

func TestDistance(t *testing.T) {
	stop := TreasureStops[0]
	if d := Distance(stop.Lat, stop.Lng, stop.Lat, stop.Lng); d != 0 {
		t.Errorf("same point distance = %f", d)
	}

	// 0.0003 degrees of latitude is roughly 33 m.
	d := Distance(stop.Lat, stop.Lng, stop.Lat+0.0003, stop.Lng)
	if math.Abs(d-33.4) > 1 {
		t.Errorf("distance = %f, want about 33.4", d)
	}

	// Stop 1 to stop 2 is well beyond tolerance.
	next := TreasureStops[1]
	if d := Distance(stop.Lat, stop.Lng, next.Lat, next.Lng); d < 500 {
		t.Errorf("distance between stops = %f, want > 500", d)
	}
}

func TestStopByNumber(t *testing.T) {
	if _, ok := StopByNumber(0); ok {
		t.Error("stop 0 should not exist")
	}
	s, ok := StopByNumber(3)
	if !ok || s.Name != "Rampendahl Brewery" {
		t.Errorf("StopByNumber(3) = %+v, %v", s, ok)
	}
}

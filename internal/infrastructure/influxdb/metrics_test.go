package influxdb

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

func TestPoints(t *testing.T) {
	at := time.Unix(1700000000, 0)

	tests := []struct {
		name  string
		point *write.Point
		want  string
	}{
		{
			name:  "query ok",
			point: queryPoint("dictionary.db", 3, 1500*time.Microsecond, nil, at),
			want:  "bridge_query,db=dictionary.db,status=ok rows=3i,duration_ms=1.5 1700000000",
		},
		{
			name:  "query failed",
			point: queryPoint("gone.db", 0, 0, errors.New(`no such table: "x"`), at),
			want:  `bridge_query,db=gone.db,status=error rows=0i,duration_ms=0,error="no such table: \"x\"" 1700000000`,
		},
		{
			name:  "provisioning ok",
			point: provisioningPoint(7, 2, 20*time.Millisecond, "", at),
			want:  "provisioning,status=ok version_code=7i,copied=2i,duration_ms=20 1700000000",
		},
		{
			name:  "provisioning failed",
			point: provisioningPoint(7, 0, time.Second, "disk full", at),
			want:  `provisioning,status=error version_code=7i,copied=0i,duration_ms=1000,error="disk full" 1700000000`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.TrimSpace(write.PointToLineProtocol(tt.point, time.Second)); got != tt.want {
				t.Errorf("line protocol = %q, want %q", got, tt.want)
			}
		})
	}
}

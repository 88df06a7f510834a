//go:build linux

package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
)

// UnitStatus reads the state of unit over the system D-Bus.
func UnitStatus(ctx context.Context, unit string) (Unit, error) {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return Unit{}, fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		return Unit{}, fmt.Errorf("unit %s: %w", unit, err)
	}
	u := Unit{
		Name:        unit,
		Description: str(props["Description"]),
		LoadState:   str(props["LoadState"]),
		ActiveState: str(props["ActiveState"]),
		SubState:    str(props["SubState"]),
	}
	if us, ok := props["ActiveEnterTimestamp"].(uint64); ok && us > 0 {
		u.ActiveSince = time.UnixMicro(int64(us))
	}
	return u, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

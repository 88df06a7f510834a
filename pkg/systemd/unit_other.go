//go:build !linux

package systemd

import (
	"context"
	"errors"
)

func UnitStatus(ctx context.Context, unit string) (Unit, error) {
	return Unit{}, errors.New("systemd is only available on linux")
}

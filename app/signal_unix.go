//go:build !windows
// +build !windows

package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	"github.com/gridexchange/edi-gateway/masterdata"
)

func interrupt(cancel <-chan struct{}, owners *masterdata.GridAreaOwners) error {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	for {
		select {
		case sig := <-c:
			switch sig {
			case syscall.SIGUSR1:
				owners.Reload()
				continue
			case syscall.SIGUSR2:
				owners.Log()
				continue
			default:
				return fmt.Errorf("received signal %s", sig)
			}
		case <-cancel:
			return errors.New("canceled")
		}
	}
}

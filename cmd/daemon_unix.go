//go:build !windows

package root

func checkDaemonSupported() error {
	return nil
}
